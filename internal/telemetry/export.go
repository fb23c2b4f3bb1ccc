package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// otlpSpan is the OTLP-compatible JSON shape of one exported span:
// {traceId, spanId, parentSpanId?, name, kind, startTime, endTime,
// attributes, events, status}.
type otlpSpan struct {
	TraceID      string          `json:"traceId"`
	SpanID       string          `json:"spanId"`
	ParentSpanID string          `json:"parentSpanId,omitempty"`
	Name         string          `json:"name"`
	Kind         model.SpanKind  `json:"kind"`
	StartTime    string          `json:"startTime"`
	EndTime      string          `json:"endTime"`
	Attributes   map[string]any  `json:"attributes,omitempty"`
	Events       []otlpSpanEvent `json:"events,omitempty"`
	Status       otlpSpanStatus  `json:"status"`
}

type otlpSpanEvent struct {
	Name       string         `json:"name"`
	Time       string         `json:"time"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type otlpSpanStatus struct {
	Code    model.SpanStatusCode `json:"code"`
	Message string               `json:"message,omitempty"`
}

// ExportOTLPJSON serializes the tracer's completed spans as OTLP-shaped
// JSON, for an on-demand export call.
func (t *Tracer) ExportOTLPJSON() ([]byte, error) {
	spans := t.Completed()
	out := make([]otlpSpan, 0, len(spans))
	for _, s := range spans {
		events := make([]otlpSpanEvent, 0, len(s.Events))
		for _, e := range s.Events {
			events = append(events, otlpSpanEvent{
				Name:       e.Name,
				Time:       e.Time.Format(rfc3339Nano),
				Attributes: e.Attributes,
			})
		}
		out = append(out, otlpSpan{
			TraceID:      s.TraceID,
			SpanID:       s.SpanID,
			ParentSpanID: s.ParentSpanID,
			Name:         s.Name,
			Kind:         s.Kind,
			StartTime:    s.StartTime.Format(rfc3339Nano),
			EndTime:      s.EndTime.Format(rfc3339Nano),
			Attributes:   s.Attributes,
			Events:       events,
			Status:       otlpSpanStatus{Code: s.Status.Code, Message: s.Status.Message},
		})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal OTLP span export: %w", err)
	}
	return data, nil
}

const rfc3339Nano = "2006-01-02T15:04:05.999999999Z07:00"
