package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EvolutionRecord is one append-only row of the evolution_history log. The
// core itself never writes to this table; it exists so an external skill
// registry or offline trainer has a durable place to record generations.
type EvolutionRecord struct {
	ID         string
	Generation int
	Changes    string
	Metrics    string
	CreatedAt  time.Time
}

// AppendEvolutionRecord inserts a new, immutable evolution_history row.
func (s *Store) AppendEvolutionRecord(ctx context.Context, r EvolutionRecord) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	err := s.withWrite(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO evolution_history (id, generation, changes, metrics, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, r.ID, r.Generation, r.Changes, r.Metrics, r.CreatedAt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("append evolution record: %w", err)
	}
	return r.ID, nil
}

// ListEvolutionHistory returns records for generation, oldest first.
func (s *Store) ListEvolutionHistory(ctx context.Context, generation int) ([]EvolutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, generation, changes, metrics, created_at
		FROM evolution_history WHERE generation = ? ORDER BY created_at ASC
	`, generation)
	if err != nil {
		return nil, fmt.Errorf("list evolution history: %w", err)
	}
	defer rows.Close()

	var out []EvolutionRecord
	for rows.Next() {
		var r EvolutionRecord
		if err := rows.Scan(&r.ID, &r.Generation, &r.Changes, &r.Metrics, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan evolution record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
