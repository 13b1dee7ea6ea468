package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Span and attribute names shared by the tool registry, queue
// manager, and HTTP transport middleware, so a trace backend groups
// their spans consistently.
const (
	SpanToolExecution  = "tool.execute"
	SpanQueueAdmission = "queue.admit"
	SpanHTTPRequest    = "http.request"

	AttrToolName   = "tool.name"
	AttrQueueJobID = "queue.job_id"
)

// initTracerProvider builds and installs the process-wide tracer
// provider. The exporter writes spans as JSON; swapping in a network
// exporter later only touches this function and TracingConfig.
func initTracerProvider(ctx context.Context, cfg TracingConfig) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create span exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRatio)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// GetTracer returns a named tracer off the process-wide provider (a
// no-op provider answers until NewManager installs a real one).
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
