package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"papertrader/src/engine"
	"papertrader/src/events"
	"papertrader/src/model"
	"papertrader/src/portfolio"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	settings model.Settings
	closed   string
}

func (s *stubEngine) IsRunning() bool                      { return true }
func (s *stubEngine) Portfolio() portfolio.View            { return portfolio.New(decimal.NewFromInt(10000)).View() }
func (s *stubEngine) Metrics() model.Metrics               { return model.Metrics{} }
func (s *stubEngine) Settings() model.Settings             { return s.settings }
func (s *stubEngine) PendingOrders() []engine.PendingOrder { return nil }
func (s *stubEngine) ProcessSignal(context.Context, model.Signal) engine.ProcessResult {
	return engine.ProcessResult{Success: true}
}
func (s *stubEngine) ClosePosition(_ context.Context, id string) (portfolio.Position, error) {
	s.closed = id
	return portfolio.Position{ID: id}, nil
}
func (s *stubEngine) UpdateSettings(context.Context, model.Settings) error { return nil }
func (s *stubEngine) UpdateConfidenceThreshold(_ context.Context, v float64) error {
	s.settings.ConfidenceThreshold = v
	return nil
}
func (s *stubEngine) UpdateSignalInterval(context.Context, int) error { return nil }
func (s *stubEngine) ResetPortfolio(context.Context) portfolio.View {
	return portfolio.New(decimal.NewFromInt(10000)).View()
}

func TestRouter(t *testing.T) {
	e := &stubEngine{settings: model.DefaultSettings()}
	positionsCalled := false
	h := NewRouter(Routes{
		Engine: e,
		Positions: func(w http.ResponseWriter, r *http.Request) {
			positionsCalled = true
			w.WriteHeader(http.StatusOK)
		},
	})

	tests := []struct {
		method, target, body string
		code                 int
	}{
		{http.MethodGet, "/healthcheck", "", http.StatusOK},
		{http.MethodGet, "/status", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/portfolio", "", http.StatusOK},
		{http.MethodPost, "/portfolio/reset", "", http.StatusOK},
		{http.MethodGet, "/positions", "", http.StatusOK},
		{http.MethodPost, "/positions/p-9/close", "", http.StatusOK},
		{http.MethodPost, "/signals", `{"symbol":"BTCUSDT","direction":"long"}`, http.StatusOK},
		{http.MethodGet, "/settings", "", http.StatusOK},
		{http.MethodPut, "/settings/confidence", `{"threshold":0.6}`, http.StatusOK},
		{http.MethodDelete, "/settings", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body)))
		require.Equal(t, tt.code, rec.Code, "%s %s", tt.method, tt.target)
	}

	require.True(t, positionsCalled)
	require.Equal(t, "p-9", e.closed)
	require.Equal(t, 0.6, e.settings.ConfidenceThreshold)
}

func TestRouterRequiresTokenForWrites(t *testing.T) {
	e := &stubEngine{settings: model.DefaultSettings()}
	h := NewRouter(Routes{Engine: e, APIToken: "s3cret"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/positions/p-1/close", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, e.closed)

	req := httptest.NewRequest(http.MethodPut, "/settings/confidence", strings.NewReader(`{"threshold":0.8}`))
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0.8, e.settings.ConfidenceThreshold)
}

func TestEventStream(t *testing.T) {
	l, _ := test.NewNullLogger()
	bus := events.NewBus(logrus.NewEntry(l), 8)
	stream := NewEventStream(bus, Config{WSWriteTimeout: time.Second, WSPingInterval: time.Second})

	srv := httptest.NewServer(NewRouter(Routes{Engine: &stubEngine{}, Events: stream}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.EqualValues(t, 1, stream.Clients())

	bus.Publish(events.PriceUpdate, map[string]string{"BTCUSDT": "50000"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, string(events.PriceUpdate), ev.Type)
	require.Equal(t, "50000", ev.Data["BTCUSDT"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return bus.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return stream.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventStreamRejectsOrigin(t *testing.T) {
	l, _ := test.NewNullLogger()
	bus := events.NewBus(logrus.NewEntry(l), 8)
	stream := NewEventStream(bus, Config{WSAllowedOrigins: []string{"https://dash.example"}})

	srv := httptest.NewServer(stream)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, 0, bus.Subscribers())
}

func TestStartServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- StartServer(ctx, "0", http.NotFoundHandler(), time.Second)
	}()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
