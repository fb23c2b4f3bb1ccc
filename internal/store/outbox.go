package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OutboxRow is the durable representation of one outbox event. The outbox
// package drives the write -> dispatch -> mark-delivered sequence; Store
// only provides the row-level operations it needs.
type OutboxRow struct {
	ID          string
	Type        string
	Payload     string
	Source      string
	CreatedAt   time.Time
	DeliveredAt *time.Time
	RetryCount  int
}

// InsertOutboxRow appends a new, undelivered event row. This is step 1 of
// the outbox pattern: write before dispatch.
func (s *Store) InsertOutboxRow(ctx context.Context, row OutboxRow) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return s.withWrite(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO outbox (id, type, payload, source, created_at, delivered_at, retry_count)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, row.ID, row.Type, row.Payload, row.Source, row.CreatedAt, row.DeliveredAt, row.RetryCount)
		if err != nil {
			return fmt.Errorf("insert outbox row: %w", err)
		}
		return nil
	})
}

// MarkOutboxDelivered records that row.ID was successfully dispatched
// in-process. This is step 3 of the outbox pattern.
func (s *Store) MarkOutboxDelivered(ctx context.Context, id string, at time.Time) error {
	return s.withWrite(func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE outbox SET delivered_at = ? WHERE id = ?
		`, at, id)
		if err != nil {
			return fmt.Errorf("mark outbox delivered %q: %w", id, err)
		}
		return nil
	})
}

// IncrementOutboxRetry bumps retry_count for a row the replay loop picked up
// but could not (yet) deliver.
func (s *Store) IncrementOutboxRetry(ctx context.Context, id string) error {
	return s.withWrite(func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE outbox SET retry_count = retry_count + 1 WHERE id = ?
		`, id)
		if err != nil {
			return fmt.Errorf("increment outbox retry %q: %w", id, err)
		}
		return nil
	})
}

// UndeliveredOutboxRows returns every row with delivered_at still NULL,
// oldest first — the set a replay loop processes after a crash so that an
// event written but never dispatched (process died between steps 1 and 2,
// or dispatched but not yet marked, process died between 2 and 3) is
// retried on next boot.
func (s *Store) UndeliveredOutboxRows(ctx context.Context) ([]OutboxRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, payload, source, created_at, delivered_at, retry_count
		FROM outbox WHERE delivered_at IS NULL ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query undelivered outbox rows: %w", err)
	}
	defer rows.Close()

	return scanOutboxRows(rows)
}

// PurgeDeliveredOutboxBefore deletes delivered rows older than cutoff,
// implementing the outbox's retention policy: a delivered row may be
// purged once it ages out.
func (s *Store) PurgeDeliveredOutboxBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.withWrite(func() error {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM outbox WHERE delivered_at IS NOT NULL AND delivered_at < ?
		`, cutoff)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("purge delivered outbox rows: %w", err)
	}
	return n, nil
}

func scanOutboxRows(rows *sql.Rows) ([]OutboxRow, error) {
	var out []OutboxRow
	for rows.Next() {
		var r OutboxRow
		if err := rows.Scan(&r.ID, &r.Type, &r.Payload, &r.Source, &r.CreatedAt, &r.DeliveredAt, &r.RetryCount); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
