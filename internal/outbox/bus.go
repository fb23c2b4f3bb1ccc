// Package outbox implements the in-process event bus and durable outbox
// pattern: synchronous/asynchronous pub-sub with a replay ring, and a
// write-then-dispatch-then-mark-delivered sequence over the store's outbox
// table that guarantees at-least-once delivery across crashes.
package outbox

import (
	"log/slog"
	"sync"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// Handler processes one delivered event. Handlers MUST be idempotent by
// event id, since the outbox replay loop may redeliver an event that was
// dispatched but not yet marked delivered before a crash.
type Handler func(model.Event)

// Bus is an in-process publish/subscribe dispatcher with a bounded replay
// ring. Handler panics are recovered and logged; they never propagate to the
// publisher and never prevent other handlers for the same event type from
// running.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	history     []model.Event
	ringSize    int
	log         *slog.Logger
}

// NewBus creates a Bus with a replay ring of the given size. A non-positive
// size disables history retention.
func NewBus(ringSize int) *Bus {
	return &Bus{
		subscribers: make(map[string][]Handler),
		ringSize:    ringSize,
		log:         slog.Default().With("component", "outbox.bus"),
	}
}

// Subscribe registers h to be invoked for every event of the given type.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], h)
}

// Publish dispatches evt synchronously to every subscriber of its type.
// A handler that panics is recovered and logged; it does not stop the
// remaining handlers from running and does not propagate to the caller.
func (b *Bus) Publish(evt model.Event) {
	b.recordHistory(evt)

	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[evt.Type]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatchSafely(h, evt)
	}
}

// PublishAsync dispatches evt to every subscriber on its own goroutine
// without blocking the caller, for fire-and-forget event emission.
func (b *Bus) PublishAsync(evt model.Event) {
	b.recordHistory(evt)

	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[evt.Type]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		go b.dispatchSafely(h, evt)
	}
}

func (b *Bus) dispatchSafely(h Handler, evt model.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", "event_type", evt.Type, "event_id", evt.ID, "recover", r)
		}
	}()
	h(evt)
}

func (b *Bus) recordHistory(evt model.Event) {
	if b.ringSize <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, evt)
	if len(b.history) > b.ringSize {
		b.history = b.history[len(b.history)-b.ringSize:]
	}
}

// History returns a snapshot of the most recent events retained for
// replay/debugging, oldest first.
func (b *Bus) History() []model.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.Event, len(b.history))
	copy(out, b.history)
	return out
}
