package strategy

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/arborfoundry/scoutagent/internal/llm"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	generateResp           llm.Response
	generateStructuredResp llm.Response
}

func (f *fakeProvider) Generate(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (llm.Response, error) {
	return f.generateResp, nil
}

func (f *fakeProvider) GenerateStructured(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, cfg llm.StructuredOutputConfig) (llm.Response, error) {
	return f.generateStructuredResp, nil
}

func (f *fakeProvider) GenerateStreaming(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (f *fakeProvider) ModelName() string { return "fake" }
func (f *fakeProvider) Close() error       { return nil }

func TestNewUnknownStrategy(t *testing.T) {
	_, err := New("bogus")
	require.Error(t, err)
}

func TestPlannerWithEmbeddedToolParsesEmbeddedCall(t *testing.T) {
	payload, _ := json.Marshal(embeddedReasoningPayload{
		Reasoning:  "need a search",
		EnoughData: false,
		ToolCall:   &toolCallShape{Name: "web_search", Arguments: map[string]any{"query": "jazz"}},
	})
	p := &fakeProvider{generateStructuredResp: llm.Response{Text: string(payload)}}

	s, err := New("planner_with_embedded_tool")
	require.NoError(t, err)

	record, resp, err := s.Reason(context.Background(), p, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "need a search", record.Reasoning)

	inv, err := s.Select(record, resp)
	require.NoError(t, err)
	require.Equal(t, "web_search", inv.ToolName)
	require.Equal(t, "jazz", inv.Arguments["query"])
}

func TestPlannerWithEmbeddedToolSynthesizesFinalAnswerWhenNoToolCall(t *testing.T) {
	payload, _ := json.Marshal(embeddedReasoningPayload{Reasoning: "all done", TaskCompleted: true})
	p := &fakeProvider{generateStructuredResp: llm.Response{Text: string(payload)}}

	s, _ := New("planner_with_embedded_tool")
	record, resp, err := s.Reason(context.Background(), p, nil, nil)
	require.NoError(t, err)

	inv, err := s.Select(record, resp)
	require.NoError(t, err)
	require.Equal(t, "final_answer", inv.ToolName)
	require.Equal(t, "all done", inv.Arguments["answer"])
}

func TestNativeToolCallUsesResponseToolCalls(t *testing.T) {
	p := &fakeProvider{generateResp: llm.Response{
		ToolCalls: []llm.ToolCall{{Name: "web_search", Arguments: map[string]any{"query": "go"}}},
	}}

	s, _ := New("native_tool_call")
	record, resp, err := s.Reason(context.Background(), p, nil, nil)
	require.NoError(t, err)
	require.False(t, record.TaskCompleted)

	inv, err := s.Select(record, resp)
	require.NoError(t, err)
	require.Equal(t, "web_search", inv.ToolName)
}

func TestNativeToolCallSynthesizesFinalAnswerOnTextOnly(t *testing.T) {
	p := &fakeProvider{generateResp: llm.Response{Text: "the answer is 42"}}

	s, _ := New("native_tool_call")
	record, resp, err := s.Reason(context.Background(), p, nil, nil)
	require.NoError(t, err)
	require.True(t, record.TaskCompleted)

	inv, err := s.Select(record, resp)
	require.NoError(t, err)
	require.Equal(t, "final_answer", inv.ToolName)
}

func TestTwoPhaseIssuesTwoCalls(t *testing.T) {
	payload, _ := json.Marshal(embeddedReasoningPayload{Reasoning: "plan first"})
	p := &fakeProvider{
		generateStructuredResp: llm.Response{Text: string(payload)},
		generateResp:           llm.Response{ToolCalls: []llm.ToolCall{{Name: "create_report"}}},
	}

	s, _ := New("two_phase")
	record, resp, err := s.Reason(context.Background(), p, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "plan first", record.Reasoning)

	inv, err := s.Select(record, resp)
	require.NoError(t, err)
	require.Equal(t, "create_report", inv.ToolName)
}
