// Package sink republishes bus events to external consumers: browsers over
// WebSocket and MQTT subscribers.
package sink

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-spectra/bus"
)

// Message is the envelope written to every sink.
type Message struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
	Payload   any    `json:"payload,omitempty"`
}

// Sink accepts messages.
type Sink interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// DefaultEvents are forwarded when Forward is given no event names.
var DefaultEvents = []string{
	"worker:result",
	"worker:error",
	"worker:timeout",
	"worker:ready",
	"mode:changed",
	"calibration:changed",
}

// ForwardOption configures a Forwarder.
type ForwardOption func(*Forwarder)

// WithEvents selects the forwarded events.
func WithEvents(events ...string) ForwardOption {
	return func(f *Forwarder) {
		if len(events) > 0 {
			f.events = events
		}
	}
}

// WithQueueSize sets how many messages may wait for the sinks.
func WithQueueSize(n int) ForwardOption {
	return func(f *Forwarder) {
		if n > 0 {
			f.queue = make(chan Message, n)
		}
	}
}

// WithLogger sets the forwarder logger.
func WithLogger(logger *slog.Logger) ForwardOption {
	return func(f *Forwarder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Forwarder copies bus events into sinks on its own goroutine so slow
// sinks never block the emitter. Messages arriving while the queue is full
// are dropped and counted.
type Forwarder struct {
	sinks  []Sink
	events []string
	queue  chan Message
	logger *slog.Logger
	now    func() time.Time

	dropped atomic.Uint64
	unsubs  []func()
	wg      sync.WaitGroup
}

// Forward subscribes to the selected events on b and starts delivering them
// to sinks until ctx ends or Stop is called.
func Forward(ctx context.Context, b *bus.Bus, sinks []Sink, opts ...ForwardOption) *Forwarder {
	f := &Forwarder{
		sinks:  sinks,
		events: DefaultEvents,
		queue:  make(chan Message, 64),
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(f)
	}

	for _, event := range f.events {
		f.unsubs = append(f.unsubs, b.On(event, func(payload any) {
			f.enqueue(Message{Type: event, Timestamp: f.now().UnixMilli(), Payload: payload})
		}))
	}

	ctx, cancel := context.WithCancel(ctx)
	f.unsubs = append(f.unsubs, cancel)

	f.wg.Add(1)

	go f.run(ctx)

	return f
}

func (f *Forwarder) enqueue(msg Message) {
	select {
	case f.queue <- msg:
	default:
		if n := f.dropped.Add(1); n == 1 || n%100 == 0 {
			f.logger.Warn("sink queue full, dropping message", "type", msg.Type, "dropped", n)
		}
	}
}

func (f *Forwarder) run(ctx context.Context) {
	defer f.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-f.queue:
			for _, s := range f.sinks {
				if err := s.Publish(ctx, msg); err != nil {
					f.logger.Warn("sink publish failed", "type", msg.Type, "error", err)
				}
			}
		}
	}
}

// Dropped returns how many messages were discarded on a full queue.
func (f *Forwarder) Dropped() uint64 { return f.dropped.Load() }

// Stop unsubscribes from the bus and waits for the delivery goroutine.
// Queued messages that were not yet delivered are discarded.
func (f *Forwarder) Stop() {
	for _, unsub := range f.unsubs {
		unsub()
	}

	f.wg.Wait()
}
