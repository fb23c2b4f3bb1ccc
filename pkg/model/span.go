package model

import "time"

// SpanKind classifies what kind of operation a span represents.
type SpanKind string

const (
	SpanAgent     SpanKind = "agent"
	SpanLLM       SpanKind = "llm"
	SpanTool      SpanKind = "tool"
	SpanRetrieval SpanKind = "retrieval"
	SpanEmbedding SpanKind = "embedding"
)

// SpanStatusCode mirrors the OTel-style ok/error status vocabulary.
type SpanStatusCode string

const (
	SpanStatusOK    SpanStatusCode = "ok"
	SpanStatusError SpanStatusCode = "error"
)

// SpanEvent is a timestamped annotation recorded within an open span.
type SpanEvent struct {
	Name       string         `json:"name"`
	Time       time.Time      `json:"time"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// SpanStatus carries the terminal status of a completed span.
type SpanStatus struct {
	Code    SpanStatusCode `json:"code"`
	Message string         `json:"message,omitempty"`
}

// Span is one node in a trace tree. Attributes may be mutated only while the
// span is open; once End is recorded the span is immutable.
type Span struct {
	TraceID      string `json:"trace_id"`
	SpanID       string `json:"span_id"`
	ParentSpanID string `json:"parent_span_id,omitempty"`

	Kind SpanKind `json:"kind"`
	Name string   `json:"name"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`

	Status     SpanStatus     `json:"status"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Events     []SpanEvent    `json:"events,omitempty"`
}

// Well-known GenAI semantic-convention attribute keys.
const (
	AttrGenAIOperationName = "gen_ai.operation.name"
	AttrGenAIRequestModel  = "gen_ai.request.model"
	AttrGenAIInputTokens   = "gen_ai.usage.input_tokens"
	AttrGenAIOutputTokens  = "gen_ai.usage.output_tokens"
	AttrGenAIAgentID       = "gen_ai.agent.id"
	AttrGenAIAgentName     = "gen_ai.agent.name"
)
