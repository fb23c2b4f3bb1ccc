package sessionmgr

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	opts.Dir = t.TempDir()
	m, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	m := newTestManager(t, Options{})
	snap := &model.SessionSnapshot{
		SessionID: "s1",
		State:     model.SessionActive,
		CreatedAt: time.Now().UTC(),
		Messages: []model.ConversationMessage{
			{Role: model.MessageUser, Content: "hello there", Timestamp: time.Now().UTC()},
		},
	}
	m.Adopt(snap)
	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := m.Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Checksum == "" {
		t.Fatal("expected checksum to be set")
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "hello there" {
		t.Fatalf("unexpected messages: %+v", loaded.Messages)
	}
}

func TestLoadDetectsChecksumMismatchButStillReturns(t *testing.T) {
	var logBuf bytes.Buffer
	m := newTestManager(t, Options{Logger: slog.New(slog.NewTextHandler(&logBuf, nil))})
	snap := &model.SessionSnapshot{SessionID: "s2", State: model.SessionActive, CreatedAt: time.Now().UTC()}
	m.Adopt(snap)
	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Tamper with the stored checksum on disk so it no longer matches the body.
	path := m.snapshotPath("s2", false)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var onDisk model.SessionSnapshot
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	onDisk.Checksum = "tampered"
	if raw, err = json.Marshal(onDisk); err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	loaded, err := m.Load("s2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.SessionID != "s2" {
		t.Fatalf("unexpected session id %q", loaded.SessionID)
	}
	if !strings.Contains(logBuf.String(), "checksum_mismatch") {
		t.Fatalf("expected a checksum_mismatch warning, log was %q", logBuf.String())
	}
}

func TestCompressionAppliesAboveThreshold(t *testing.T) {
	m := newTestManager(t, Options{CompressionThreshold: 10})
	snap := &model.SessionSnapshot{
		SessionID: "s3",
		State:     model.SessionActive,
		Messages: []model.ConversationMessage{
			{Role: model.MessageUser, Content: strings.Repeat("x", 1000)},
		},
	}
	m.Adopt(snap)
	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := m.Load("s3")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Messages) != 1 {
		t.Fatalf("expected compressed snapshot to round-trip, got %+v", loaded)
	}
}

func TestRecoverCrashedMarksActiveSessionCrashed(t *testing.T) {
	m := newTestManager(t, Options{})
	snap := &model.SessionSnapshot{SessionID: "s4", State: model.SessionActive}
	m.Adopt(snap)
	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m2, err := New(Options{Dir: m.dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	recovered, err := m2.RecoverCrashed(context.Background())
	if err != nil {
		t.Fatalf("RecoverCrashed: %v", err)
	}
	if recovered == nil || recovered.State != model.SessionCrashed {
		t.Fatalf("expected crashed recovery, got %+v", recovered)
	}
}

func TestResumeTransitionsCrashedToRecovered(t *testing.T) {
	m := newTestManager(t, Options{})
	snap := &model.SessionSnapshot{
		SessionID: "s6",
		State:     model.SessionActive,
		Messages: []model.ConversationMessage{
			{Role: model.MessageUser, Content: "first"},
			{Role: model.MessageAssistant, Content: "second"},
		},
		PendingOperations: []model.PendingOperation{
			{ID: "op1", Kind: "task", Payload: map[string]any{"description": "finish the thing"}},
		},
	}
	m.Adopt(snap)
	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m2, err := New(Options{Dir: m.dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	crashed, err := m2.RecoverCrashed(context.Background())
	if err != nil || crashed == nil {
		t.Fatalf("RecoverCrashed: %v, %+v", err, crashed)
	}

	resumed, err := m2.Resume(context.Background(), "s6")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.State != model.SessionRecovered {
		t.Fatalf("expected recovered state, got %s", resumed.State)
	}
	if len(resumed.Messages) != 2 {
		t.Fatalf("expected messages preserved, got %d", len(resumed.Messages))
	}
	if len(resumed.PendingOperations) != 1 || resumed.PendingOperations[0].ID != "op1" {
		t.Fatalf("expected pending operation preserved, got %+v", resumed.PendingOperations)
	}

	if _, err := m2.Resume(context.Background(), "s6"); err == nil {
		t.Fatal("expected resume of a non-crashed session to fail")
	}
}

func TestStopRemovesCurrentMarkerOnCleanShutdown(t *testing.T) {
	m := newTestManager(t, Options{AutoSaveInterval: time.Hour})
	snap := &model.SessionSnapshot{SessionID: "s7", State: model.SessionCompleted}
	m.Adopt(snap)
	m.StartAutoSave(context.Background())
	m.Stop(context.Background())

	m2, err := New(Options{Dir: m.dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	recovered, err := m2.RecoverCrashed(context.Background())
	if err != nil {
		t.Fatalf("RecoverCrashed: %v", err)
	}
	if recovered != nil {
		t.Fatalf("clean shutdown must leave nothing to recover, got %+v", recovered)
	}
}

func TestPendingOperationAddRemove(t *testing.T) {
	m := newTestManager(t, Options{})
	m.Adopt(&model.SessionSnapshot{SessionID: "s8", State: model.SessionActive})

	m.AddPendingOperation(model.PendingOperation{ID: "op1", Kind: "task"})
	m.AddPendingOperation(model.PendingOperation{ID: "op2", Kind: "task"})
	if got := len(m.Current().PendingOperations); got != 2 {
		t.Fatalf("expected 2 pending operations, got %d", got)
	}

	m.RemovePendingOperation("op1")
	ops := m.Current().PendingOperations
	if len(ops) != 1 || ops[0].ID != "op2" {
		t.Fatalf("expected only op2 to remain, got %+v", ops)
	}
}

func TestRetentionPrunesOldestBeyondMax(t *testing.T) {
	m := newTestManager(t, Options{MaxSessions: 2})
	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		snap := &model.SessionSnapshot{
			SessionID: id,
			State:     model.SessionActive,
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		m.Adopt(snap)
		if err := m.Save(context.Background()); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	entries, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 retained sessions, got %d", len(entries))
	}
	if _, err := m.Load("a"); err == nil {
		t.Fatal("expected oldest session to be pruned")
	}
}

func TestSearchFallsBackToFullScan(t *testing.T) {
	m := newTestManager(t, Options{})
	snap := &model.SessionSnapshot{
		SessionID: "s5",
		State:     model.SessionActive,
		Messages: []model.ConversationMessage{
			{Role: model.MessageUser, Content: "needle-in-haystack marker"},
			{Role: model.MessageAssistant, Content: "discussing the widget rollout"},
		},
	}
	m.Adopt(snap)
	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	results, err := m.Search("needle-in-haystack", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
}
