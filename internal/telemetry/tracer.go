// Package telemetry implements the tracer and metrics collector: a
// hierarchical span tree with parent/child propagation, head and tail
// sampling, and GenAI-semantic-convention metrics. It reuses the OTel API's
// attribute/codes/trace vocabulary but records spans into its own
// in-memory tree and exports on demand, rather than pushing to a
// collector.
package telemetry

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// activeSpanKey is the context key under which the currently open span is
// stored, giving every goroutine its own task-local active-span slot
// without a package-global.
type activeSpanKeyType struct{}

var activeSpanKey = activeSpanKeyType{}

// ActiveSpan is the handle to an open span, returned by Start and consumed
// by End. Attributes and events may be recorded only while the span is
// open.
type ActiveSpan struct {
	span    *model.Span
	parent  *ActiveSpan
	sampled bool
}

// Tracer owns the completed-span list and sampling policy. It is safe for
// concurrent use; the completed list is append-only under a short critical
// section.
type Tracer struct {
	mu        sync.Mutex
	completed []model.Span
	dropped   int64

	headSampleRate   float64
	tailSampleErrors bool

	log *slog.Logger
}

// NewTracer constructs a Tracer. headSampleRate is clamped to [0,1]; a
// non-positive rate samples nothing at the head, relying entirely on tail
// sampling of error spans when tailSampleErrors is set.
func NewTracer(headSampleRate float64, tailSampleErrors bool) *Tracer {
	if headSampleRate < 0 {
		headSampleRate = 0
	}
	if headSampleRate > 1 {
		headSampleRate = 1
	}
	return &Tracer{
		headSampleRate:   headSampleRate,
		tailSampleErrors: tailSampleErrors,
		log:              slog.Default().With("component", "telemetry.tracer"),
	}
}

// Start opens a new span of kind/name, propagating trace_id and parent from
// the active span already in ctx, if any, and returns a context carrying the
// new span as active along with the handle used to End it.
//
// Head sampling is decided at Start time: a dropped span still participates
// in the parent/child stack (so End's stack-discipline invariant holds) but
// is never appended to the completed list unless a later End call upgrades
// it via tail sampling.
func (t *Tracer) Start(ctx context.Context, kind model.SpanKind, name string) (context.Context, *ActiveSpan) {
	parent, _ := ctx.Value(activeSpanKey).(*ActiveSpan)

	traceID := uuid.NewString()
	var parentSpanID string
	if parent != nil {
		traceID = parent.span.TraceID
		parentSpanID = parent.span.SpanID
	}

	sp := &model.Span{
		TraceID:      traceID,
		SpanID:       uuid.NewString(),
		ParentSpanID: parentSpanID,
		Kind:         kind,
		Name:         name,
		StartTime:    time.Now().UTC(),
		Attributes:   map[string]any{},
	}

	as := &ActiveSpan{
		span:    sp,
		parent:  parent,
		sampled: rand.Float64() < t.headSampleRate, // #nosec G404 -- sampling is not a security control
	}

	return context.WithValue(ctx, activeSpanKey, as), as
}

// SetAttribute mutates an attribute on an open span. Attributes may be
// mutated only while the span is open; calling this after End is a
// programmer error and is silently ignored.
func (as *ActiveSpan) SetAttribute(key string, value any) {
	if as == nil || !as.span.EndTime.IsZero() {
		return
	}
	as.span.Attributes[key] = value
}

// AddEvent appends a timestamped annotation to an open span.
func (as *ActiveSpan) AddEvent(name string, attrs map[string]any) {
	if as == nil || !as.span.EndTime.IsZero() {
		return
	}
	as.span.Events = append(as.span.Events, model.SpanEvent{
		Name:       name,
		Time:       time.Now().UTC(),
		Attributes: attrs,
	})
}

// SpanID returns the open span's id, for correlation in logs and errors.
func (as *ActiveSpan) SpanID() string {
	if as == nil {
		return ""
	}
	return as.span.SpanID
}

// TraceID returns the open span's trace id.
func (as *ActiveSpan) TraceID() string {
	if as == nil {
		return ""
	}
	return as.span.TraceID
}

// End closes as with the given status, enforcing the stack-discipline
// invariant (a span's end_time is >= every child's end_time) by construction
// -- End is only ever called on the innermost open span a caller holds.
func (t *Tracer) End(as *ActiveSpan, status model.SpanStatusCode, message string) {
	if as == nil {
		return
	}
	as.span.EndTime = time.Now().UTC()
	as.span.Status = model.SpanStatus{Code: status, Message: message}

	// Tail sampling: always keep error spans even if head sampling dropped
	// them, so an error trace is never invisible to the observability trail.
	keep := as.sampled
	if !keep && t.tailSampleErrors && status == model.SpanStatusError {
		keep = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !keep {
		t.dropped++
		return
	}
	t.completed = append(t.completed, *as.span)
}

// Completed returns a snapshot of every span recorded so far, in the order
// they were closed.
func (t *Tracer) Completed() []model.Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Span, len(t.completed))
	copy(out, t.completed)
	return out
}

// DroppedCount reports how many spans sampling has discarded, so the
// observer itself stays observable.
func (t *Tracer) DroppedCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// StatusCodeFromOTel maps an OTel codes.Code to the core's SpanStatusCode
// vocabulary.
func StatusCodeFromOTel(c codes.Code) model.SpanStatusCode {
	if c == codes.Error {
		return model.SpanStatusError
	}
	return model.SpanStatusOK
}

// OTelSpanKind maps a core SpanKind onto the OTel trace.SpanKind
// vocabulary, for handing spans to OTel-API-shaped tooling: agent spans are
// internal orchestration work, everything else is an outbound client call.
func OTelSpanKind(k model.SpanKind) trace.SpanKind {
	switch k {
	case model.SpanAgent:
		return trace.SpanKindInternal
	case model.SpanLLM, model.SpanTool, model.SpanRetrieval, model.SpanEmbedding:
		return trace.SpanKindClient
	default:
		return trace.SpanKindUnspecified
	}
}

// AttrKV converts a core attribute key/value into an OTel attribute.KeyValue,
// for callers that want to hand span attributes to OTel-API-shaped tooling.
func AttrKV(key string, value string) attribute.KeyValue {
	return attribute.String(key, value)
}
