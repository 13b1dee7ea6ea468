package strategy

import (
	"context"

	"github.com/arborfoundry/scoutagent/internal/agentcontext"
	"github.com/arborfoundry/scoutagent/internal/llm"
	"github.com/arborfoundry/scoutagent/internal/tools"
)

// NativeToolCall is one of the three pluggable Phase R/S strategies
// (spec.md §9 REDESIGN FLAGS): the LLM returns a native function-call
// payload directly via the provider's tool-calling support; the
// reasoning record is derived from the accompanying text rather than a
// separate structured field set.
type NativeToolCall struct{}

func (s *NativeToolCall) Name() string { return "native_tool_call" }

func (s *NativeToolCall) Reason(ctx context.Context, provider llm.Provider, messages []llm.Message, toolSet []tools.Descriptor) (*agentcontext.ReasoningRecord, llm.Response, error) {
	resp, err := provider.Generate(ctx, messages, toolDefinitions(toolSet))
	if err != nil {
		return nil, llm.Response{}, err
	}

	record := &agentcontext.ReasoningRecord{
		Reasoning:        resp.Text,
		CurrentSituation: resp.Text,
		TaskCompleted:    len(resp.ToolCalls) == 0,
	}
	return record, resp, nil
}

func (s *NativeToolCall) Select(record *agentcontext.ReasoningRecord, resp llm.Response) (Invocation, error) {
	if len(resp.ToolCalls) == 0 {
		return synthesizeFinalAnswer(resp.Text), nil
	}
	call := resp.ToolCalls[0]
	return Invocation{ToolName: call.Name, Arguments: call.Arguments}, nil
}
