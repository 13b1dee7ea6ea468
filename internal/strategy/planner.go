package strategy

import (
	"context"

	"github.com/arborfoundry/scoutagent/internal/agentcontext"
	"github.com/arborfoundry/scoutagent/internal/llm"
	"github.com/arborfoundry/scoutagent/internal/tools"
)

// PlannerWithEmbeddedTool is one of the three pluggable Phase R/S
// strategies (spec.md §9 REDESIGN FLAGS): a single LLM call returns a
// JSON object carrying both the step-by-step reasoning and the chosen
// tool invocation embedded in the same payload.
type PlannerWithEmbeddedTool struct{}

func (s *PlannerWithEmbeddedTool) Name() string { return "planner_with_embedded_tool" }

func (s *PlannerWithEmbeddedTool) Reason(ctx context.Context, provider llm.Provider, messages []llm.Message, toolSet []tools.Descriptor) (*agentcontext.ReasoningRecord, llm.Response, error) {
	resp, err := provider.GenerateStructured(ctx, messages, toolDefinitions(toolSet), llm.StructuredOutputConfig{
		Format: "json",
		Schema: reasoningSchema,
	})
	if err != nil {
		return nil, llm.Response{}, err
	}

	payload, err := parseEmbeddedPayload(resp.Text)
	if err != nil {
		return nil, resp, err
	}
	return recordFromPayload(payload), resp, nil
}

func (s *PlannerWithEmbeddedTool) Select(record *agentcontext.ReasoningRecord, resp llm.Response) (Invocation, error) {
	payload, err := parseEmbeddedPayload(resp.Text)
	if err != nil {
		return Invocation{}, err
	}
	if payload.ToolCall == nil || payload.ToolCall.Name == "" {
		return synthesizeFinalAnswer(record.Reasoning), nil
	}
	return Invocation{ToolName: payload.ToolCall.Name, Arguments: payload.ToolCall.Arguments}, nil
}
