// Package bus is a named-event publish/subscribe hub.
//
// Handlers run synchronously on the emitting goroutine in subscription
// order. A panicking handler is recovered and logged so that the remaining
// handlers still receive the event.
package bus

import (
	"log/slog"
	"sync"
)

// Handler receives an event payload.
type Handler func(payload any)

type listener struct {
	id uint64
	fn Handler
}

// Bus dispatches events to subscribed handlers. It is safe for concurrent
// use. Handlers may subscribe, unsubscribe or emit from inside a callback.
type Bus struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[string][]listener
	logger    *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for recovered handler panics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		listeners: make(map[string][]listener),
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// On subscribes fn to event and returns a function that removes the
// subscription. Calling the returned function more than once is harmless.
// An empty event name or nil handler yields a no-op unsubscribe.
func (b *Bus) On(event string, fn Handler) (unsubscribe func()) {
	if event == "" || fn == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[event] = append(b.listeners[event], listener{id: id, fn: fn})
	b.mu.Unlock()

	return func() { b.remove(event, id) }
}

// Once subscribes fn for a single delivery of event.
func (b *Bus) Once(event string, fn Handler) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	var (
		once sync.Once
		off  func()
	)

	ready := make(chan struct{})
	off = b.On(event, func(payload any) {
		once.Do(func() {
			<-ready
			off()
			fn(payload)
		})
	})
	close(ready)

	return off
}

func (b *Bus) remove(event string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ls := b.listeners[event]
	for i, l := range ls {
		if l.id != id {
			continue
		}

		next := make([]listener, 0, len(ls)-1)
		next = append(next, ls[:i]...)
		next = append(next, ls[i+1:]...)

		if len(next) == 0 {
			delete(b.listeners, event)
		} else {
			b.listeners[event] = next
		}

		return
	}
}

// Emit delivers payload to every handler subscribed to event when Emit was
// called and returns how many handlers completed without panicking.
func (b *Bus) Emit(event string, payload any) int {
	b.mu.Lock()
	ls := b.listeners[event]
	b.mu.Unlock()

	delivered := 0
	for _, l := range ls {
		if b.call(event, l.fn, payload) {
			delivered++
		}
	}

	return delivered
}

func (b *Bus) call(event string, fn Handler, payload any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus: listener panicked", "event", event, "panic", r)
			ok = false
		}
	}()

	fn(payload)

	return true
}

// Clear removes all handlers for event, or every handler when event is "".
func (b *Bus) Clear(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if event == "" {
		b.listeners = make(map[string][]listener)
		return
	}

	delete(b.listeners, event)
}

// Count returns the number of handlers subscribed to event.
func (b *Bus) Count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.listeners[event])
}
