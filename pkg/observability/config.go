// Package observability is the process-wide tracer provider and
// Prometheus metrics registry shared by the tool registry, the queue
// manager, and the HTTP transport's request middleware.
//
// Grounded on the teacher's pkg/observability package (OTLP tracer
// setup, a globally-installed Metrics recorder, a Manager lifecycle
// type), rewritten down to one internally-consistent surface: the
// teacher's copy carried at least three incompatible generations of
// the same Metrics interface and several manager.go/debug_exporter.go
// symbols with no definition anywhere in the package (see DESIGN.md).
package observability

import "fmt"

// Config controls the tracer and metrics registry NewManager builds.
type Config struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// TracingConfig controls the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled       bool    `yaml:"enabled"`
	ServiceName   string  `yaml:"service_name"`
	SamplingRatio float64 `yaml:"sampling_ratio"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// SetDefaults fills zero-valued fields with the process's defaults.
func (c *Config) SetDefaults() {
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "scoutagent"
	}
	if c.Tracing.SamplingRatio == 0 {
		c.Tracing.SamplingRatio = 1.0
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "scoutagent"
	}
}

// Validate rejects a config NewManager cannot act on.
func (c *Config) Validate() error {
	if c.Tracing.SamplingRatio < 0 || c.Tracing.SamplingRatio > 1 {
		return fmt.Errorf("observability: tracing.sampling_ratio must be in [0,1], got %v", c.Tracing.SamplingRatio)
	}
	return nil
}
