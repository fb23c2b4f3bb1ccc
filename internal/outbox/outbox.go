package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/orchestrator-core/internal/store"
	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// Outbox pins the write order to write, then dispatch, then mark
// delivered. It drives the durable outbox table and the in-process Bus
// together so that a crash between dispatch and mark-delivered still
// leaves the row undelivered for ReplayPending to retry.
type Outbox struct {
	store *store.Store
	bus   *Bus
	log   *slog.Logger
}

// New constructs an Outbox over store s, dispatching through bus.
func New(s *store.Store, bus *Bus) *Outbox {
	return &Outbox{
		store: s,
		bus:   bus,
		log:   slog.Default().With("component", "outbox"),
	}
}

// Append executes the three-step outbox sequence:
//  1. insert the event row with delivered_at = NULL
//  2. dispatch to the bus
//  3. on successful dispatch, mark the row delivered
//
// Dispatch is always attempted in-process even though Bus.Publish cannot
// itself fail (handler panics are recovered, not surfaced) -- "failure" here
// means the process dying mid-dispatch, which ReplayPending recovers from on
// next boot, not a returned error from Publish.
func (o *Outbox) Append(ctx context.Context, eventType, source string, payload any) (model.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return model.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}

	evt := model.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}

	if err := o.store.InsertOutboxRow(ctx, store.OutboxRow{
		ID:        evt.ID,
		Type:      evt.Type,
		Payload:   string(raw),
		Source:    evt.Source,
		CreatedAt: evt.CreatedAt,
	}); err != nil {
		return model.Event{}, fmt.Errorf("append outbox event: %w", err)
	}

	o.bus.Publish(evt)

	deliveredAt := time.Now().UTC()
	if err := o.store.MarkOutboxDelivered(ctx, evt.ID, deliveredAt); err != nil {
		// The in-process dispatch already ran; we only failed to record
		// delivery. The row stays undelivered and ReplayPending retries the
		// dispatch on next boot -- handlers must tolerate redelivery.
		o.log.Error("mark outbox delivered failed, row will be replayed", "event_id", evt.ID, "error", err)
		return evt, nil
	}
	evt.DeliveredAt = &deliveredAt
	return evt, nil
}

// ReplayPending re-dispatches every row still undelivered, oldest first, and
// marks each delivered on success. Call this once at process start before
// accepting new work: if the process died after dispatch but before
// mark-delivered, recovery replays the dispatch on next boot.
func (o *Outbox) ReplayPending(ctx context.Context) (int, error) {
	rows, err := o.store.UndeliveredOutboxRows(ctx)
	if err != nil {
		return 0, fmt.Errorf("list undelivered outbox rows: %w", err)
	}

	replayed := 0
	for _, row := range rows {
		var payload any
		if err := json.Unmarshal([]byte(row.Payload), &payload); err != nil {
			o.log.Error("undecodable outbox payload, skipping", "event_id", row.ID, "error", err)
			continue
		}

		evt := model.Event{
			ID:         row.ID,
			Type:       row.Type,
			Payload:    payload,
			Source:     row.Source,
			CreatedAt:  row.CreatedAt,
			RetryCount: row.RetryCount,
		}

		o.bus.Publish(evt)

		deliveredAt := time.Now().UTC()
		if err := o.store.MarkOutboxDelivered(ctx, row.ID, deliveredAt); err != nil {
			_ = o.store.IncrementOutboxRetry(ctx, row.ID)
			o.log.Error("replay dispatch succeeded but mark-delivered failed", "event_id", row.ID, "error", err)
			continue
		}
		replayed++
	}

	o.log.Info("outbox replay complete", "replayed", replayed, "pending", len(rows))
	return replayed, nil
}

// Purge deletes delivered rows older than retention.
func (o *Outbox) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return o.store.PurgeDeliveredOutboxBefore(ctx, time.Now().Add(-retention).UTC())
}

// Bus exposes the underlying bus so callers can Subscribe before Append is
// ever called.
func (o *Outbox) Bus() *Bus { return o.bus }
