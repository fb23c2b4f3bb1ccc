package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SetAgentState upserts a key/value pair using INSERT OR REPLACE.
func (s *Store) SetAgentState(ctx context.Context, key, value string) error {
	return s.withWrite(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO agent_state (key, value, updated_at)
			VALUES (?, ?, ?)
		`, key, value, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("set agent_state %q: %w", key, err)
		}
		return nil
	})
}

// GetAgentState returns the value stored under key.
func (s *Store) GetAgentState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM agent_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get agent_state %q: %w", key, err)
	}
	return value, nil
}

// DeleteAgentState removes the value stored under key, if any.
func (s *Store) DeleteAgentState(ctx context.Context, key string) error {
	return s.withWrite(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM agent_state WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("delete agent_state %q: %w", key, err)
		}
		return nil
	})
}
