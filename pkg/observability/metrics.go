package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements Metrics against its own registry
// rather than prometheus's global default, so a process can build
// more than one Manager (tests included) without colliding on metric
// registration.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	toolDuration *prometheus.HistogramVec
	toolErrors   *prometheus.CounterVec

	llmDuration *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec
	llmErrors   *prometheus.CounterVec

	httpDuration *prometheus.HistogramVec
	httpSize     *prometheus.HistogramVec

	queueAdmissions *prometheus.CounterVec
}

// NewMetrics builds the registry and registers every collector.
func NewMetrics(cfg MetricsConfig) (*PrometheusMetrics, error) {
	ns := cfg.Namespace
	if ns == "" {
		ns = "scoutagent"
	}

	reg := prometheus.NewRegistry()
	m := &PrometheusMetrics{
		registry: reg,
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "tool", Name: "execution_duration_seconds",
			Help:    "Tool execution latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		toolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "tool", Name: "execution_errors_total",
			Help: "Tool executions that returned an error.",
		}, []string{"tool"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "llm", Name: "call_duration_seconds",
			Help:    "LLM call latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "llm", Name: "tokens_total",
			Help: "LLM tokens consumed, by model and direction.",
		}, []string{"model", "direction"}),
		llmErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "llm", Name: "call_errors_total",
			Help: "LLM calls that returned an error.",
		}, []string{"model"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		httpSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "http", Name: "response_size_bytes",
			Help:    "Inbound HTTP response size in bytes.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"method", "path"}),
		queueAdmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "queue", Name: "admissions_total",
			Help: "Job submissions, by admission outcome.",
		}, []string{"accepted", "reason"}),
	}

	for _, c := range []prometheus.Collector{
		m.toolDuration, m.toolErrors,
		m.llmDuration, m.llmTokens, m.llmErrors,
		m.httpDuration, m.httpSize,
		m.queueAdmissions,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) RecordToolExecution(_ context.Context, tool string, duration time.Duration, err error) {
	m.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if err != nil {
		m.toolErrors.WithLabelValues(tool).Inc()
	}
}

func (m *PrometheusMetrics) RecordLLMCall(_ context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	m.llmDuration.WithLabelValues(model).Observe(duration.Seconds())
	m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	if err != nil {
		m.llmErrors.WithLabelValues(model).Inc()
	}
}

func (m *PrometheusMetrics) RecordHTTPRequest(_ context.Context, method, path string, statusCode int, duration time.Duration, responseSize int) {
	m.httpDuration.WithLabelValues(method, path, statusCodeLabel(statusCode)).Observe(duration.Seconds())
	m.httpSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

func (m *PrometheusMetrics) RecordQueueAdmission(_ context.Context, accepted bool, reason string) {
	m.queueAdmissions.WithLabelValues(boolLabel(accepted), reason).Inc()
}

// Handler serves the registry in Prometheus's text exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func statusCodeLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

var _ Metrics = (*PrometheusMetrics)(nil)
