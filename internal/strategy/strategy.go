// Package strategy implements the Agent Loop Engine's pluggable Phase
// R/S strategies (spec.md §4.4, §9 REDESIGN FLAGS): one engine state
// machine, three interchangeable reasoning/selection approaches.
//
// Grounded on pkg/reasoning/strategy.go's ReasoningStrategy interface
// (PrepareIteration/ShouldStop/AfterIteration shape), narrowed from the
// teacher's AgentServices-injected, multi-agent-orchestration strategy
// down to the two phases spec.md names: Reason (Phase R) and Select
// (Phase S).
package strategy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arborfoundry/scoutagent/internal/agentcontext"
	"github.com/arborfoundry/scoutagent/internal/llm"
	"github.com/arborfoundry/scoutagent/internal/tools"
)

// Invocation is the tool call chosen by Phase S.
type Invocation struct {
	ToolName  string
	Arguments map[string]any
}

// Strategy implements Phase R (Reasoning) and Phase S (Selection). The
// state machine, budgets, streaming, and clarification handling live in
// internal/engine and are identical across strategies; only these two
// phases differ (spec.md §4.4, §9).
type Strategy interface {
	Name() string

	// Reason calls the LLM (one or more times, at the strategy's
	// discretion) and returns the structured reasoning record plus the
	// raw provider response it derived from.
	Reason(ctx context.Context, provider llm.Provider, messages []llm.Message, toolSet []tools.Descriptor) (*agentcontext.ReasoningRecord, llm.Response, error)

	// Select extracts the chosen tool invocation from Reason's output.
	// If the response carries no tool call, it synthesizes a
	// final_answer invocation from the textual content (spec.md §4.4
	// Phase S).
	Select(record *agentcontext.ReasoningRecord, resp llm.Response) (Invocation, error)
}

// synthesizeFinalAnswer builds the textual-fallback final_answer
// invocation shared by all three strategies' Phase S (spec.md §4.4:
// "If the payload is textual (no tool call), synthesize a final_answer
// invocation whose answer is the text").
func synthesizeFinalAnswer(text string) Invocation {
	return Invocation{ToolName: "final_answer", Arguments: map[string]any{"answer": text, "status": "completed"}}
}

// toolDefinitions converts the dynamic tool set for one iteration into
// the generic llm.ToolDefinition shape.
func toolDefinitions(toolSet []tools.Descriptor) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(toolSet))
	for _, d := range toolSet {
		defs = append(defs, llm.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Schema()})
	}
	return defs
}

// reasoningSchema is the JSON schema requested from structured-output
// calls (PlannerWithEmbeddedTool, and TwoPhase's reasoning phase),
// mirroring spec.md §4.4 Phase R's required fields.
var reasoningSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"reasoning":         map[string]any{"type": "string"},
		"current_situation": map[string]any{"type": "string"},
		"plan_status":       map[string]any{"type": "string"},
		"enough_data":       map[string]any{"type": "boolean"},
		"remaining_steps":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"task_completed":    map[string]any{"type": "boolean"},
		"tool_call": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":      map[string]any{"type": "string"},
				"arguments": map[string]any{"type": "object"},
			},
		},
	},
	"required": []string{"reasoning", "current_situation", "plan_status", "enough_data", "task_completed"},
}

// embeddedReasoningPayload is the shape PlannerWithEmbeddedTool parses
// its single LLM call's text into.
type embeddedReasoningPayload struct {
	Reasoning        string         `json:"reasoning"`
	CurrentSituation string         `json:"current_situation"`
	PlanStatus       string         `json:"plan_status"`
	EnoughData       bool           `json:"enough_data"`
	RemainingSteps   []string       `json:"remaining_steps"`
	TaskCompleted    bool           `json:"task_completed"`
	ToolCall         *toolCallShape `json:"tool_call"`
}

type toolCallShape struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func parseEmbeddedPayload(text string) (*embeddedReasoningPayload, error) {
	var p embeddedReasoningPayload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, &llm.ErrMalformedOutput{Raw: text, Err: err}
	}
	return &p, nil
}

func recordFromPayload(p *embeddedReasoningPayload) *agentcontext.ReasoningRecord {
	return &agentcontext.ReasoningRecord{
		Reasoning:        p.Reasoning,
		CurrentSituation: p.CurrentSituation,
		PlanStatus:       p.PlanStatus,
		EnoughData:       p.EnoughData,
		RemainingSteps:   p.RemainingSteps,
		TaskCompleted:    p.TaskCompleted,
	}
}

// New constructs a Strategy by name (config.EngineConfig.Strategy).
func New(name string) (Strategy, error) {
	switch name {
	case "planner_with_embedded_tool":
		return &PlannerWithEmbeddedTool{}, nil
	case "native_tool_call":
		return &NativeToolCall{}, nil
	case "two_phase":
		return &TwoPhase{}, nil
	default:
		return nil, fmt.Errorf("strategy: unknown strategy %q", name)
	}
}
