package model

// MetricKind is the instrument type a MetricPoint belongs to.
type MetricKind string

const (
	MetricCounter   MetricKind = "counter"
	MetricGauge     MetricKind = "gauge"
	MetricHistogram MetricKind = "histogram"
)

// MetricPoint is one recorded observation. Counters add, gauges set,
// histograms observe into a bucketed distribution.
type MetricPoint struct {
	Name   string            `json:"name"`
	Kind   MetricKind        `json:"kind"`
	Value  float64           `json:"value"`
	Labels map[string]string `json:"labels,omitempty"`
}

// Well-known GenAI semantic-convention metric names.
const (
	MetricGenAIClientTokenUsage        = "gen_ai.client.token.usage"
	MetricGenAIClientOperationDuration = "gen_ai.client.operation.duration"
	MetricGenAIServerTimeToFirstToken  = "gen_ai.server.time_to_first_token"
	MetricAgentToolInvocations         = "agent.tool.invocations"
	MetricAgentErrorCount              = "agent.error.count"
)

// DefaultHistogramBucketsMs are the default histogram buckets in
// milliseconds, per the GenAI semantic conventions this runtime follows.
var DefaultHistogramBucketsMs = []float64{5, 10, 25, 50, 75, 100, 250, 500, 750, 1000, 2500, 5000, 7500, 10000}
