package sessionmgr

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/orchestrator-core/internal/orcherr"
	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// computeChecksum hashes the snapshot's JSON encoding with Checksum cleared,
// so the stored digest never includes itself.
func computeChecksum(snap model.SessionSnapshot) (string, error) {
	snap.Checksum = ""
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot for checksum: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Save persists the current snapshot if dirty, updates the current-session
// marker, refreshes the index, and prunes to MaxSessions. It is a no-op
// when nothing has changed since the last save.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	snap := m.current
	dirty := m.dirty
	m.mu.Unlock()

	if snap == nil || !dirty {
		return nil
	}

	snap.UpdatedAt = time.Now().UTC()
	checksum, err := computeChecksum(*snap)
	if err != nil {
		return err
	}
	snap.Checksum = checksum

	compressed := false
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if len(body) > m.compressionThreshold {
		compressed = true
	}

	path := m.snapshotPath(snap.SessionID, compressed)
	if err := writeSnapshotFile(path, body, compressed); err != nil {
		return err
	}
	// Remove a stale sibling file if the compression decision flipped.
	_ = os.Remove(m.snapshotPath(snap.SessionID, !compressed))

	if err := m.writeCurrentMarker(snap.SessionID); err != nil {
		return err
	}

	if err := m.updateIndex(IndexEntry{
		SessionID:  snap.SessionID,
		State:      snap.State,
		UpdatedAt:  snap.UpdatedAt,
		Compressed: compressed,
		Summary:    summarize(*snap),
	}); err != nil {
		return err
	}

	if err := m.prune(ctx); err != nil {
		m.log.Warn("retention prune failed", "error", err)
	}

	m.mu.Lock()
	m.dirty = false
	m.mu.Unlock()
	return nil
}

func writeSnapshotFile(path string, body []byte, compressed bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer f.Close()

	if !compressed {
		_, err = f.Write(body)
		return err
	}

	gw := gzip.NewWriter(f)
	if _, err := gw.Write(body); err != nil {
		gw.Close()
		return fmt.Errorf("gzip snapshot: %w", err)
	}
	return gw.Close()
}

func readSnapshotFile(path string, compressed bool) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !compressed {
		return io.ReadAll(f)
	}
	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip snapshot: %w", err)
	}
	defer gr.Close()
	return io.ReadAll(gr)
}

// Load reads sessionID's snapshot file, recomputing and verifying its
// checksum. A mismatch is logged as checksum_mismatch but the snapshot is
// still returned, per the best-effort recovery contract.
func (m *Manager) Load(sessionID string) (*model.SessionSnapshot, error) {
	for _, compressed := range []bool{false, true} {
		path := m.snapshotPath(sessionID, compressed)
		body, err := readSnapshotFile(path, compressed)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var snap model.SessionSnapshot
		if err := json.Unmarshal(body, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot %s: %w", sessionID, err)
		}
		stored := snap.Checksum
		recomputed, err := computeChecksum(snap)
		if err != nil {
			return nil, err
		}
		if recomputed != stored {
			m.log.Warn("checksum_mismatch", "session_id", sessionID, "stored", stored, "recomputed", recomputed)
		}
		return &snap, nil
	}
	return nil, orcherr.New(orcherr.KindNotFound, "", fmt.Errorf("session %s not found", sessionID))
}

func (m *Manager) writeCurrentMarker(sessionID string) error {
	path := filepath.Join(m.dir, currentSessionMarker)
	data, err := json.Marshal(map[string]string{"session_id": sessionID})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (m *Manager) removeCurrentMarker() error {
	err := os.Remove(filepath.Join(m.dir, currentSessionMarker))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// RecoverCrashed scans the current-session marker left by a prior process.
// If it references a snapshot still in SessionActive state, that process
// crashed before a clean shutdown: the snapshot is marked SessionCrashed,
// re-saved, and returned for the caller to offer recovery.
func (m *Manager) RecoverCrashed(ctx context.Context) (*model.SessionSnapshot, error) {
	path := filepath.Join(m.dir, currentSessionMarker)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read current session marker: %w", err)
	}

	var marker struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, fmt.Errorf("unmarshal current session marker: %w", err)
	}

	snap, err := m.Load(marker.SessionID)
	if err != nil {
		return nil, err
	}
	if snap.State != model.SessionActive {
		return nil, nil
	}

	snap.State = model.SessionCrashed
	m.Adopt(snap)
	if err := m.Save(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

// Resume transitions a crashed session to recovered, re-adopts it as the
// manager's current snapshot, and saves. Messages and pending operations
// are preserved verbatim; the supervisor replays the pending operations.
func (m *Manager) Resume(ctx context.Context, sessionID string) (*model.SessionSnapshot, error) {
	snap, err := m.Load(sessionID)
	if err != nil {
		return nil, err
	}
	if snap.State != model.SessionCrashed {
		return nil, orcherr.New(orcherr.KindBadRequest, "",
			fmt.Errorf("session %s is %s, only crashed sessions can be resumed", sessionID, snap.State))
	}

	snap.State = model.SessionRecovered
	m.Adopt(snap)
	if err := m.Save(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

func summarize(snap model.SessionSnapshot) string {
	if len(snap.Messages) == 0 {
		return ""
	}
	last := snap.Messages[len(snap.Messages)-1]
	const maxLen = 160
	content := last.Content
	if len(content) > maxLen {
		content = content[:maxLen]
	}
	return content
}

func (m *Manager) loadIndex() ([]IndexEntry, error) {
	path := filepath.Join(m.dir, indexFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session index: %w", err)
	}
	var entries []IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal session index: %w", err)
	}
	return entries, nil
}

func (m *Manager) saveIndex(entries []IndexEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session index: %w", err)
	}
	return os.WriteFile(filepath.Join(m.dir, indexFile), data, 0o644)
}

func (m *Manager) updateIndex(entry IndexEntry) error {
	entries, err := m.loadIndex()
	if err != nil {
		return err
	}

	replaced := false
	for i := range entries {
		if entries[i].SessionID == entry.SessionID {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return m.saveIndex(entries)
}

// prune removes the oldest-by-updated_at snapshots beyond MaxSessions.
func (m *Manager) prune(ctx context.Context) error {
	entries, err := m.loadIndex()
	if err != nil {
		return err
	}
	if len(entries) <= m.maxSessions {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})

	keep := entries[:m.maxSessions]
	drop := entries[m.maxSessions:]

	for _, e := range drop {
		_ = os.Remove(m.snapshotPath(e.SessionID, e.Compressed))
	}
	return m.saveIndex(keep)
}

// List returns the index summaries, most recently updated first.
func (m *Manager) List() ([]IndexEntry, error) {
	entries, err := m.loadIndex()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})
	return entries, nil
}

// Search scans index summaries first; if limit results are not satisfied
// there, it falls back to loading full snapshots for a message-body scan,
// short-circuiting as soon as limit matches are found.
func (m *Manager) Search(query string, limit int) ([]model.SessionSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	entries, err := m.List()
	if err != nil {
		return nil, err
	}

	var results []model.SessionSnapshot
	var remaining []IndexEntry

	for _, e := range entries {
		if len(results) >= limit {
			return results, nil
		}
		if containsFold(e.Summary, query) {
			snap, err := m.Load(e.SessionID)
			if err != nil {
				continue
			}
			results = append(results, *snap)
			continue
		}
		remaining = append(remaining, e)
	}

	for _, e := range remaining {
		if len(results) >= limit {
			break
		}
		snap, err := m.Load(e.SessionID)
		if err != nil {
			continue
		}
		for _, msg := range snap.Messages {
			if containsFold(msg.Content, query) {
				results = append(results, *snap)
				break
			}
		}
	}
	return results, nil
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
