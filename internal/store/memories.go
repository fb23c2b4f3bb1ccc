package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Memory is one row of the memories table: an episodic or semantic record
// the supervisor's MemoryStore capability persists through. AccessedAt and
// AccessCount feed the recall ranking's relevance decay.
type Memory struct {
	ID          string
	Type        string
	Content     string
	Metadata    string
	Importance  float64
	CreatedAt   time.Time
	AccessedAt  *time.Time
	AccessCount int
}

// InsertMemory appends a new memory row, returning its generated id.
func (s *Store) InsertMemory(ctx context.Context, m Memory) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	err := s.withWrite(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO memories (id, type, content, metadata, importance, created_at, accessed_at, access_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, m.Type, m.Content, m.Metadata, m.Importance, m.CreatedAt, m.AccessedAt, m.AccessCount)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return m.ID, nil
}

// TopMemoriesByImportance returns the top-N memories of type, ordered by
// importance descending, relying on the (type, importance DESC) composite
// index.
func (s *Store) TopMemoriesByImportance(ctx context.Context, memType string, limit int) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, content, metadata, importance, created_at, accessed_at, access_count
		FROM memories
		WHERE type = ?
		ORDER BY importance DESC
		LIMIT ?
	`, memType, limit)
	if err != nil {
		return nil, fmt.Errorf("query memories by importance: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// RecentMemories returns the n most recently created memories of type.
func (s *Store) RecentMemories(ctx context.Context, memType string, n int) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, content, metadata, importance, created_at, accessed_at, access_count
		FROM memories
		WHERE type = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, memType, n)
	if err != nil {
		return nil, fmt.Errorf("query recent memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// ListMemoriesByType returns every memory of type, most important first.
func (s *Store) ListMemoriesByType(ctx context.Context, memType string) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, content, metadata, importance, created_at, accessed_at, access_count
		FROM memories
		WHERE type = ?
		ORDER BY importance DESC
	`, memType)
	if err != nil {
		return nil, fmt.Errorf("list memories by type: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// TouchMemoryAccess records one more access to each id, feeding the recall
// ranking's access-count boost and decay clock.
func (s *Store) TouchMemoryAccess(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.withWrite(func() error {
		for _, id := range ids {
			if _, err := s.db.ExecContext(ctx, `
				UPDATE memories SET accessed_at = ?, access_count = access_count + 1 WHERE id = ?
			`, now, id); err != nil {
				return fmt.Errorf("touch memory %q: %w", id, err)
			}
		}
		return nil
	})
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var out []Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.Type, &m.Content, &m.Metadata, &m.Importance, &m.CreatedAt, &m.AccessedAt, &m.AccessCount); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
