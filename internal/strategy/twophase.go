package strategy

import (
	"context"

	"github.com/arborfoundry/scoutagent/internal/agentcontext"
	"github.com/arborfoundry/scoutagent/internal/llm"
	"github.com/arborfoundry/scoutagent/internal/tools"
)

// TwoPhase is one of the three pluggable Phase R/S strategies (spec.md
// §9 REDESIGN FLAGS): a separate reasoning call (no tools presented)
// followed by a distinct tool-selection call (tools presented, no
// reasoning fields requested). Useful for providers/models that answer
// more reliably when the two concerns aren't asked for in one shot.
type TwoPhase struct{}

func (s *TwoPhase) Name() string { return "two_phase" }

func (s *TwoPhase) Reason(ctx context.Context, provider llm.Provider, messages []llm.Message, toolSet []tools.Descriptor) (*agentcontext.ReasoningRecord, llm.Response, error) {
	reasoningResp, err := provider.GenerateStructured(ctx, messages, nil, llm.StructuredOutputConfig{
		Format: "json",
		Schema: reasoningSchema,
	})
	if err != nil {
		return nil, llm.Response{}, err
	}
	payload, err := parseEmbeddedPayload(reasoningResp.Text)
	if err != nil {
		return nil, reasoningResp, err
	}
	record := recordFromPayload(payload)

	selectionMessages := append(append([]llm.Message{}, messages...), llm.Message{
		Role:    "assistant",
		Content: record.Reasoning,
	})
	selectionResp, err := provider.Generate(ctx, selectionMessages, toolDefinitions(toolSet))
	if err != nil {
		return nil, llm.Response{}, err
	}

	return record, selectionResp, nil
}

func (s *TwoPhase) Select(record *agentcontext.ReasoningRecord, resp llm.Response) (Invocation, error) {
	if len(resp.ToolCalls) == 0 {
		return synthesizeFinalAnswer(resp.Text), nil
	}
	call := resp.ToolCalls[0]
	return Invocation{ToolName: call.Name, Arguments: call.Arguments}, nil
}
