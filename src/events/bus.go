package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type Type string

const (
	EngineStarted     Type = "engine_started"
	EngineStopped     Type = "engine_stopped"
	PriceUpdate       Type = "price_update"
	SignalReceived    Type = "signal_received"
	TradeExecuted     Type = "trade_executed"
	TradeClosed       Type = "trade_closed"
	PerformanceUpdate Type = "performance_update"
	SettingsUpdated   Type = "settings_updated"
	PortfolioReset    Type = "portfolio_reset"
)

type Event struct {
	Type      Type        `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Publisher is fire-and-forget: Publish never blocks and never fails.
type Publisher interface {
	Publish(eventType Type, data interface{})
}

// Bus fans events out to subscribers over buffered channels.
// A subscriber whose buffer is full misses the event; the publisher never waits.
type Bus struct {
	logger *logrus.Entry
	buffer int

	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int

	dropped atomic.Uint64
}

func NewBus(logger *logrus.Entry, buffer int) *Bus {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if buffer < 1 {
		buffer = 1
	}
	return &Bus{
		logger: logger.WithField("component", "events"),
		buffer: buffer,
		subs:   map[int]chan Event{},
	}
}

// Subscribe returns a channel of events and a func that unsubscribes and closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *Bus) Publish(eventType Type, data interface{}) {
	ev := Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
			b.logger.WithFields(logrus.Fields{
				"subscriber": id,
				"type":       eventType,
			}).Debug("subscriber buffer full, event dropped")
		}
	}
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped counts events missed by slow subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
