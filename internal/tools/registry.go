// Package tools implements the Tool Registry (C1): a process-wide,
// startup-populated map from tool identifier to invokable descriptor.
//
// Grounded on pkg/tools/registry.go's ToolRegistry (wrapping
// pkg/registry.BaseRegistry[T], ExecuteTool's otel span pattern)
// and pkg/tools/interfaces.go's Tool/ToolResult shapes, narrowed from
// the teacher's multi-source (local/MCP/agent_call) discovery model
// down to the spec's closed, fixed tool set (spec.md §4.1, Non-goal:
// dynamic tool plugin system). Spans and execution metrics route
// through pkg/observability, which owns the tracer provider and
// Prometheus registry built once in cmd/research-agent/serve.go.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/arborfoundry/scoutagent/internal/agentcontext"
	"github.com/arborfoundry/scoutagent/pkg/observability"
	"github.com/arborfoundry/scoutagent/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Category distinguishes tools the engine always keeps available from
// those gated by a research budget (spec.md §4.1's list_by_category).
type Category string

const (
	CategorySystem   Category = "system"
	CategoryResearch Category = "research"
)

// Executor is invoked with the parsed arguments and the calling agent's
// Context; it returns a textual (possibly JSON) result. An executor
// must not mutate Context beyond its documented side effects (sources,
// searches, clarifications_used) — spec.md §4.1.
type Executor func(ctx context.Context, agentCtx *agentcontext.Context, args map[string]any) (string, error)

// Descriptor is a Tool Descriptor (spec.md §3): identifier, input
// schema, category, and the executor closure.
type Descriptor struct {
	Name        string
	Description string
	Category    Category
	// Terminal marks the unique tool that can end a job (final_answer).
	Terminal bool
	// Suspending marks the unique tool that suspends the engine for
	// clarification.
	Suspending bool
	Parameters map[string]any // JSON schema "properties", keyed by field name
	Required   []string
	Execute    Executor
}

// Schema returns the JSON schema object presented to the LLM for this
// tool's arguments.
func (d Descriptor) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": d.Parameters,
		"required":   d.Required,
	}
}

// Registry is the Tool Registry (C1).
type Registry struct {
	base *registry.BaseRegistry[Descriptor]
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{base: registry.NewBaseRegistry[Descriptor]()}
}

// Register adds or replaces a descriptor. Idempotent by name: a later
// registration of the same name wins (spec.md §4.1), unlike the
// underlying BaseRegistry's error-on-duplicate default.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("tools: descriptor name cannot be empty")
	}
	_ = r.base.Remove(d.Name) // no-op if absent
	return r.base.Register(d.Name, d)
}

// Resolve looks up descriptors by identifier. Missing identifiers are
// logged and skipped, never fail the call (spec.md §4.1).
func (r *Registry) Resolve(identifiers []string) []Descriptor {
	out := make([]Descriptor, 0, len(identifiers))
	for _, id := range identifiers {
		d, ok := r.base.Get(id)
		if !ok {
			slog.Warn("tools: unknown tool identifier skipped", "tool", id)
			continue
		}
		out = append(out, d)
	}
	return out
}

// ListByCategory returns all registered tools in a category, sorted by
// name, used by the Agent Loop Engine to build default toolkits.
func (r *Registry) ListByCategory(cat Category) []Descriptor {
	var out []Descriptor
	for _, d := range r.base.List() {
		if d.Category == cat {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns one descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	return r.base.Get(name)
}

var tracer = observability.GetTracer("scoutagent.tools")

// ExecuteTool runs the named tool's executor inside an OpenTelemetry
// span and a Prometheus execution-duration/error metric, grounded on
// pkg/tools/registry.go's ExecuteTool.
func ExecuteTool(ctx context.Context, r *Registry, name string, agentCtx *agentcontext.Context, args map[string]any) (string, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, observability.SpanToolExecution, trace.WithAttributes(attribute.String(observability.AttrToolName, name)))
	defer span.End()

	d, ok := r.Get(name)
	if !ok {
		err := fmt.Errorf("tools: %q not found in registry", name)
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool not found")
		observability.GetGlobalMetrics().RecordToolExecution(ctx, name, time.Since(start), err)
		return "", err
	}

	result, err := d.Execute(ctx, agentCtx, args)
	duration := time.Since(start)
	span.SetAttributes(attribute.Int64("tool.duration_ms", duration.Milliseconds()))
	observability.GetGlobalMetrics().RecordToolExecution(ctx, name, duration, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetStatus(codes.Ok, "success")
	return result, nil
}
