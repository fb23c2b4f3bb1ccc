package model

import "time"

// SessionState is the lifecycle state of a SessionSnapshot.
type SessionState string

const (
	SessionNew       SessionState = "new"
	SessionActive    SessionState = "active"
	SessionPaused    SessionState = "paused"
	SessionCrashed   SessionState = "crashed"
	SessionCompleted SessionState = "completed"
	SessionRecovered SessionState = "recovered"
)

// MessageRole identifies who produced a ConversationMessage.
type MessageRole string

const (
	MessageUser      MessageRole = "user"
	MessageAssistant MessageRole = "assistant"
	MessageSystem    MessageRole = "system"
	MessageTool      MessageRole = "tool"
)

// ConversationMessage is one entry in a session's append-only message log.
type ConversationMessage struct {
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// PendingOperation is a serializable record of work that survives a crash by
// value, not by reference, so that replay can reconstruct a task without
// holding a live pointer into a previous process's state.
type PendingOperation struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Payload    map[string]any `json:"payload,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// SessionSnapshot is the durable representation of a live session: its
// messages, context, working directory, and any operations that were
// in-flight when the snapshot was taken.
//
// The checksum is the cryptographic digest over the serialized snapshot
// minus the checksum field itself.
type SessionSnapshot struct {
	SessionID string       `json:"session_id"`
	State     SessionState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`

	Messages []ConversationMessage `json:"messages"`
	Context  map[string]any        `json:"context,omitempty"`

	WorkingDirectory  string             `json:"working_directory,omitempty"`
	OpenFiles         []string           `json:"open_files,omitempty"`
	PendingOperations []PendingOperation `json:"pending_operations,omitempty"`

	Checksum string `json:"checksum"`
}
