// Package sessionmgr maintains the live session snapshot on disk: periodic
// auto-save, crash detection on startup, checksum verification, retention
// pruning, and a cheap summary-first search. Snapshots live in flat files
// rather than the sqlite store so crash recovery stays readable and
// portable independent of the database.
package sessionmgr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

const (
	currentSessionMarker = "current_session.json"
	indexFile            = "sessions_index.json"
)

// IndexEntry is the cheap, always-loaded summary of one snapshot, used for
// listing and the first pass of Search without reading full snapshot
// bodies.
type IndexEntry struct {
	SessionID  string             `json:"session_id"`
	State      model.SessionState `json:"state"`
	UpdatedAt  time.Time          `json:"updated_at"`
	Compressed bool               `json:"compressed"`
	Summary    string             `json:"summary,omitempty"`
}

// Manager owns the on-disk .sessions/ directory: snapshot files, the
// current-session marker, and the lightweight index used for listing and
// retention.
type Manager struct {
	dir                  string
	maxSessions          int
	compressionThreshold int
	autoSaveInterval     time.Duration
	log                  *slog.Logger

	mu      sync.Mutex
	current *model.SessionSnapshot
	dirty   bool

	stopAutoSave context.CancelFunc
	wg           sync.WaitGroup
}

// Options configures a Manager; zero values fall back to the documented
// defaults.
type Options struct {
	Dir                  string
	MaxSessions          int
	CompressionThreshold int
	AutoSaveInterval     time.Duration
	Logger               *slog.Logger
}

// New constructs a Manager rooted at opts.Dir, creating it if absent.
func New(opts Options) (*Manager, error) {
	dir := opts.Dir
	if dir == "" {
		dir = ".sessions"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	maxSessions := opts.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 50
	}
	threshold := opts.CompressionThreshold
	if threshold <= 0 {
		threshold = 10 * 1024
	}
	interval := opts.AutoSaveInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		dir:                  dir,
		maxSessions:          maxSessions,
		compressionThreshold: threshold,
		autoSaveInterval:     interval,
		log:                  log.With("component", "sessionmgr"),
	}, nil
}

func (m *Manager) snapshotPath(sessionID string, compressed bool) string {
	if compressed {
		return filepath.Join(m.dir, sessionID+".json.gz")
	}
	return filepath.Join(m.dir, sessionID+".json")
}

// Adopt sets the manager's current in-memory snapshot and marks it dirty
// for the next auto-save tick or explicit Save call.
func (m *Manager) Adopt(snap *model.SessionSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = snap
	m.dirty = true
}

// MarkDirty flags the current snapshot as needing a save on the next tick.
// Callers invoke this after mutating the snapshot in place (e.g. appending
// a message) rather than re-Adopting it.
func (m *Manager) MarkDirty() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty = true
}

// Current returns the manager's live snapshot, or nil if none is adopted.
func (m *Manager) Current() *model.SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// AppendMessage appends msg to the current snapshot's message log and marks
// the snapshot dirty. The log is append-only within a session.
func (m *Manager) AppendMessage(msg model.ConversationMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	m.current.Messages = append(m.current.Messages, msg)
	m.dirty = true
}

// AddPendingOperation appends op to the current snapshot's pending list and
// marks the snapshot dirty. Pending operations are held by value so replay
// after a crash can reconstruct tasks without live references.
func (m *Manager) AddPendingOperation(op model.PendingOperation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	m.current.PendingOperations = append(m.current.PendingOperations, op)
	m.dirty = true
}

// RemovePendingOperation deletes the pending operation with the given id
// from the current snapshot, if present.
func (m *Manager) RemovePendingOperation(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	ops := m.current.PendingOperations
	for i := range ops {
		if ops[i].ID == id {
			m.current.PendingOperations = append(ops[:i], ops[i+1:]...)
			m.dirty = true
			return
		}
	}
}
