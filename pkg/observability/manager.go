package observability

import (
	"context"
	"fmt"
	"net/http"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Manager owns the process-wide tracer provider and metrics registry,
// built once at startup in cmd/research-agent/serve.go and torn down
// on shutdown.
type Manager struct {
	provider *sdktrace.TracerProvider
	metrics  Metrics
}

// NewManager builds a Manager from cfg. Tracing and metrics are each
// independently optional; a Manager with both disabled is a valid,
// inert no-op.
func NewManager(ctx context.Context, cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("observability: invalid config: %w", err)
	}

	m := &Manager{metrics: NoopMetrics{}}

	if cfg.Tracing.Enabled {
		provider, err := initTracerProvider(ctx, cfg.Tracing)
		if err != nil {
			return nil, fmt.Errorf("observability: init tracer: %w", err)
		}
		m.provider = provider
	}

	if cfg.Metrics.Enabled {
		pm, err := NewMetrics(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("observability: init metrics: %w", err)
		}
		m.metrics = pm
	}

	return m, nil
}

// Metrics returns the Manager's recorder: a *PrometheusMetrics if
// metrics were enabled, NoopMetrics otherwise.
func (m *Manager) Metrics() Metrics { return m.metrics }

// MetricsHandler serves /metrics. It is nil when metrics are
// disabled; callers must check before mounting it.
func (m *Manager) MetricsHandler() http.Handler {
	if pm, ok := m.metrics.(*PrometheusMetrics); ok {
		return pm.Handler()
	}
	return nil
}

// Shutdown flushes and stops the tracer provider. It is a no-op when
// tracing was never enabled.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
