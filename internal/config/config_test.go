package config

import (
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.MaxSessions != 50 {
		t.Errorf("MaxSessions = %d, want 50", cfg.MaxSessions)
	}
	if cfg.AutoSaveIntervalSeconds != 30 {
		t.Errorf("AutoSaveIntervalSeconds = %d, want 30", cfg.AutoSaveIntervalSeconds)
	}
	if cfg.Retry.Cap != 30*time.Second {
		t.Errorf("Retry.Cap = %v, want 30s", cfg.Retry.Cap)
	}
	if cfg.ApprovalDefaultTimeoutSeconds != 30 {
		t.Errorf("ApprovalDefaultTimeoutSeconds = %d, want 30", cfg.ApprovalDefaultTimeoutSeconds)
	}
	if cfg.Tracer.HeadSampleRate != 1.0 {
		t.Errorf("Tracer.HeadSampleRate = %v, want 1.0", cfg.Tracer.HeadSampleRate)
	}
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
max_sessions: 5
retry:
  max_attempts: 7
breaker:
  failure_threshold: 2
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.MaxSessions != 5 {
		t.Errorf("MaxSessions = %d, want 5", cfg.MaxSessions)
	}
	if cfg.Retry.MaxAttempts != 7 {
		t.Errorf("Retry.MaxAttempts = %d, want 7", cfg.Retry.MaxAttempts)
	}
	if cfg.Breaker.FailureThreshold != 2 {
		t.Errorf("Breaker.FailureThreshold = %d, want 2", cfg.Breaker.FailureThreshold)
	}
	// Fields absent from the document keep their defaults.
	if cfg.SessionDir != ".sessions" {
		t.Errorf("SessionDir = %q, want .sessions", cfg.SessionDir)
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("max_sessions: [not a number")); err == nil {
		t.Fatal("expected a parse error")
	}
}
