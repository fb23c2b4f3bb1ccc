// Package model defines the data types shared across the orchestration core:
// requests, tasks, handoffs, approvals, spans, metrics, outbox events, and
// session snapshots.
package model

import "time"

// Request is the raw user prompt that enters the supervisor. Immutable once
// constructed.
type Request struct {
	// SessionID is optional; an empty value asks the supervisor to start a
	// new session.
	SessionID string `json:"session_id,omitempty"`

	// Prompt is the raw user text.
	Prompt string `json:"prompt"`

	// ReceivedAt records when the request arrived.
	ReceivedAt time.Time `json:"received_at"`
}
