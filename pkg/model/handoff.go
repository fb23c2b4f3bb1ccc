package model

import "time"

// Handoff is an immutable record of a role-to-role transfer of work. Handoffs
// are appended to a session's handoff log in creation order and are never
// mutated afterward.
type Handoff struct {
	FromRole Role   `json:"from_role"`
	ToRole   Role   `json:"to_role"`
	TaskID   string `json:"task_id"`

	// Context is a free-form payload carried across the handoff.
	Context map[string]any `json:"context,omitempty"`

	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
