// Package ports declares the capability interfaces the execution supervisor
// is injected with: the model backend, the tool registry, and the memory
// store. Concrete implementations live outside the core and are wired at
// startup; the supervisor never constructs a backend itself.
package ports

import (
	"context"
	"time"
)

// ModelClient is the capability interface a worker role is routed to: one
// request/response call plus an optional streaming upgrade
// (StreamingModelClient).
type ModelClient interface {
	// Name identifies the backend, used as the breaker/metric dimension.
	Name() string

	// Complete issues one completion request and returns the full response.
	Complete(ctx context.Context, req ModelRequest) (ModelResponse, error)
}

// StreamChunk is one unit of streamed model output.
type StreamChunk struct {
	Text string

	// InputTokens/OutputTokens are usage totals, populated on the final
	// chunk when the backend reports them.
	InputTokens  int
	OutputTokens int
}

// StreamingModelClient is implemented by backends that can stream. The
// supervisor prefers Stream when available so inline tool directives are
// parsed and output is yielded chunk by chunk; otherwise it falls back to
// Complete.
type StreamingModelClient interface {
	ModelClient

	// Stream issues one completion request and returns a channel of chunks,
	// closed when the response is complete. An error after the channel is
	// returned is delivered by closing the channel early; callers treat a
	// short stream as the full response.
	Stream(ctx context.Context, req ModelRequest) (<-chan StreamChunk, error)
}

// Throttler is implemented by backends that track rate-limit or budget
// state. The supervisor consults ShouldThrottle before dispatch and delays
// the call by the returned duration when throttling is requested.
type Throttler interface {
	ShouldThrottle() (bool, time.Duration)
}

// RateLimitState is a backend's self-reported remaining quota, exposed by
// providers that implement Throttler.
type RateLimitState struct {
	RequestsRemainingMinute int
	RequestsRemainingDay    int
	TokensRemainingMinute   int
	MonthlyBudgetRemaining  float64
}

// ModelRequest carries one completion request, trimmed to the fields the
// planner and supervisor populate.
type ModelRequest struct {
	Model       string
	System      string
	Messages    []ModelMessage
	MaxTokens   int
	Temperature float32
}

// ModelMessage is one turn of conversation history handed to a ModelClient.
type ModelMessage struct {
	Role    string
	Content string
}

// ModelResponse is the full result of a ModelClient.Complete call, carrying
// the GenAI token-usage fields the tracer and metrics pipeline record.
type ModelResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
}
