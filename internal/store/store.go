// Package store is the embedded transactional persistence layer: a single
// sqlite database, WAL-mode, one writer discipline, backing the
// agent_state, memories, skills, evolution_history, and outbox logical
// tables. modernc.org/sqlite keeps the build cgo-free.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup finds no row.
var ErrNotFound = sql.ErrNoRows

// Store wraps a single sqlite connection pool opened in WAL journaling mode.
// Writes are serialized through writeMu so the single-writer discipline
// holds at the Store level. The pool is capped at one connection (see Open),
// so reads also wait for any statement already using it; they are not
// serialized by writeMu.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	writeMu sync.Mutex
}

// Open opens (creating if absent) the sqlite database at path, enables WAL
// journaling, and applies any pending migrations. Initialization is
// idempotent: calling Open repeatedly against the same path is safe.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single physical connection keeps the "one writer" discipline honest
	// at the driver level too; database/sql then serializes all access to it.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL journal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db, log: slog.Default().With("component", "store")}

	mig, err := newMigrator(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := mig.up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	s.log.Info("store opened", "path", path)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// withWrite serializes fn against every other writer.
func (s *Store) withWrite(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn()
}
