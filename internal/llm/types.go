// Package llm is the generic LLM collaborator interface the Agent Loop
// Engine (C4) reasons against. Per spec.md's Non-goals ("defining the
// LLM provider protocol") and "out of scope" list ("specific LLM wire
// formats"), this package defines only the provider-agnostic surface;
// each concrete provider's wire format stays private to its own file.
//
// Grounded on pkg/llms/types.go, which the teacher already kept
// decoupled from its A2A/protobuf message types — this package reuses
// that shape directly.
package llm

import "context"

// Message is one turn in a conversation, in universal form.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolDefinition describes one tool/function presented to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	RawArgs   string         `json:"raw_args"`
}

// StreamChunk is one piece of a streaming generation.
type StreamChunk struct {
	Type     string
	Text     string
	ToolCall *ToolCall
	Tokens   int
	Error    error
}

// StructuredOutputConfig requests a schema-conforming response, used by
// strategies that need the model to return parseable reasoning fields
// directly (spec.md §4.4 Phase R).
type StructuredOutputConfig struct {
	Format string
	Schema any
}

// Response is the result of a non-streaming Generate call.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Tokens    int
}

// ErrMalformedOutput is returned when a provider cannot parse the
// model's structured output into the requested shape. The core never
// attempts to coerce a malformed response (spec.md §9 Open Questions);
// internal/engine surfaces this verbatim as an LLM_ERROR.
type ErrMalformedOutput struct {
	Raw string
	Err error
}

func (e *ErrMalformedOutput) Error() string {
	return "llm: malformed structured output: " + e.Err.Error()
}

func (e *ErrMalformedOutput) Unwrap() error { return e.Err }

// Provider is the generic LLM collaborator. Exactly one concrete
// implementation backs any given Engine at a time; strategies supply
// the prompt/tool shape, the provider only speaks HTTP.
type Provider interface {
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error)
	GenerateStructured(ctx context.Context, messages []Message, tools []ToolDefinition, cfg StructuredOutputConfig) (Response, error)
	GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error)
	ModelName() string
	Close() error
}
