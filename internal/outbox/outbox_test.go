package outbox

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/orchestrator-core/internal/store"
	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

func newTestOutbox(t *testing.T) (*Outbox, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, NewBus(16)), s
}

func TestBusHandlerPanicDoesNotStopOtherHandlers(t *testing.T) {
	bus := NewBus(4)

	var mu sync.Mutex
	var calledSecond bool

	bus.Subscribe("x", func(model.Event) { panic("boom") })
	bus.Subscribe("x", func(model.Event) {
		mu.Lock()
		calledSecond = true
		mu.Unlock()
	})

	bus.Publish(model.Event{Type: "x", ID: "1"})

	mu.Lock()
	defer mu.Unlock()
	if !calledSecond {
		t.Fatal("second handler was not invoked after the first panicked")
	}
}

func TestOutboxAppendMarksDelivered(t *testing.T) {
	ob, s := newTestOutbox(t)
	ctx := context.Background()

	var got model.Event
	done := make(chan struct{})
	ob.Bus().Subscribe("TaskCompleted", func(evt model.Event) {
		got = evt
		close(done)
	})

	evt, err := ob.Append(ctx, model.EventTaskCompleted, "supervisor", map[string]string{"task_id": "t1"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	<-done

	if got.ID != evt.ID {
		t.Fatalf("handler saw different event id: %q vs %q", got.ID, evt.ID)
	}
	if evt.DeliveredAt == nil {
		t.Fatal("expected DeliveredAt to be set after successful dispatch")
	}

	pending, err := s.UndeliveredOutboxRows(ctx)
	if err != nil {
		t.Fatalf("UndeliveredOutboxRows: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending rows, got %d", len(pending))
	}
}

func TestReplayPendingRedeliversUndeliveredRows(t *testing.T) {
	ob, s := newTestOutbox(t)
	ctx := context.Background()

	if err := s.InsertOutboxRow(ctx, store.OutboxRow{
		ID:        "evt-crashed",
		Type:      "TaskFailed",
		Payload:   `{"task_id":"t2"}`,
		Source:    "supervisor",
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("InsertOutboxRow: %v", err)
	}

	var deliveredCount int
	var mu sync.Mutex
	ob.Bus().Subscribe("TaskFailed", func(model.Event) {
		mu.Lock()
		deliveredCount++
		mu.Unlock()
	})

	n, err := ob.ReplayPending(ctx)
	if err != nil {
		t.Fatalf("ReplayPending: %v", err)
	}
	if n != 1 {
		t.Fatalf("replayed %d rows, want 1", n)
	}

	mu.Lock()
	if deliveredCount != 1 {
		t.Fatalf("handler invoked %d times, want 1", deliveredCount)
	}
	mu.Unlock()

	pending, err := s.UndeliveredOutboxRows(ctx)
	if err != nil {
		t.Fatalf("UndeliveredOutboxRows: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected 0 pending after replay, got %d", len(pending))
	}
}
