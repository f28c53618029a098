package server

import (
	"net/http"
	"sync/atomic"
	"time"

	"papertrader/src/events"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// EventSource is satisfied by *events.Bus.
type EventSource interface {
	Subscribe() (<-chan events.Event, func())
}

// EventStream pushes every engine event to websocket clients as JSON.
// Each client gets its own bus subscription, so a slow client only loses its own events.
type EventStream struct {
	source       EventSource
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
	clients      atomic.Int64
}

func NewEventStream(source EventSource, cfg Config) *EventStream {
	if cfg.WSWriteTimeout <= 0 {
		cfg.WSWriteTimeout = 10 * time.Second
	}
	if cfg.WSPingInterval <= 0 {
		cfg.WSPingInterval = 30 * time.Second
	}

	allowed := map[string]bool{}
	for _, o := range cfg.WSAllowedOrigins {
		allowed[o] = true
	}

	return &EventStream{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
		writeTimeout: cfg.WSWriteTimeout,
		pingInterval: cfg.WSPingInterval,
	}
}

// Clients is the number of connected websocket clients.
func (s *EventStream) Clients() int64 {
	return s.clients.Load()
}

func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	s.clients.Add(1)
	ch, unsubscribe := s.source.Subscribe()
	log := logger.WithField("remote", r.RemoteAddr)
	log.Info("websocket client connected")

	done := make(chan struct{})
	go s.readPump(conn, done)
	s.writePump(conn, ch, done)

	unsubscribe()
	_ = conn.Close()
	s.clients.Add(-1)
	log.Info("websocket client disconnected")
}

// readPump discards client messages and closes done when the connection drops.
func (s *EventStream) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *EventStream) writePump(conn *websocket.Conn, ch <-chan events.Event, done <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				logger.WithError(err).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
