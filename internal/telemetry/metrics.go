package telemetry

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// Metrics collects the GenAI-semantic-convention instruments, built with
// promauto against a private prometheus.Registry rather than the global
// default, so multiple Metrics instances (one per test, one per
// orchestrator instance) never collide on duplicate registration.
type Metrics struct {
	registry *prometheus.Registry

	TokenUsage        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	TimeToFirstToken  *prometheus.HistogramVec
	ToolInvocations   *prometheus.CounterVec
	ErrorCount        *prometheus.CounterVec
}

// NewMetrics constructs a Metrics instance with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	buckets := append([]float64(nil), model.DefaultHistogramBucketsMs...)
	for i, b := range buckets {
		buckets[i] = b / 1000 // convert ms buckets to seconds for HistogramOpts
	}

	return &Metrics{
		registry: reg,

		TokenUsage: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gen_ai_client_token_usage",
			Help: "Number of tokens consumed, labeled by operation, model, and token type.",
		}, []string{"operation", "model", "token_type"}),

		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gen_ai_client_operation_duration_seconds",
			Help:    "Duration of a GenAI client operation.",
			Buckets: buckets,
		}, []string{"operation", "model"}),

		TimeToFirstToken: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gen_ai_server_time_to_first_token_seconds",
			Help:    "Time from request start to first streamed token.",
			Buckets: buckets,
		}, []string{"operation", "model"}),

		ToolInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_tool_invocations_total",
			Help: "Number of tool invocations, labeled by tool name and outcome.",
		}, []string{"tool", "outcome"}),

		ErrorCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_error_count_total",
			Help: "Number of errors, labeled by component and error kind.",
		}, []string{"component", "kind"}),
	}
}

// ExportPrometheusText serializes every registered metric in Prometheus text
// exposition format, for on-demand /metrics-style scraping.
func (m *Metrics) ExportPrometheusText() (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metric families: %w", err)
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return "", fmt.Errorf("encode metric family %s: %w", mf.GetName(), err)
		}
	}
	return buf.String(), nil
}
