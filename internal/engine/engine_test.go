package engine

import (
	"context"
	"testing"

	"github.com/arborfoundry/scoutagent/internal/agentcontext"
	"github.com/arborfoundry/scoutagent/internal/llm"
	"github.com/arborfoundry/scoutagent/internal/stream"
	"github.com/arborfoundry/scoutagent/internal/tools"
	"github.com/arborfoundry/scoutagent/pkg/config"
	"github.com/stretchr/testify/require"
)

// scriptedProvider returns one llm.Response per call, in order, so a
// test can script a whole iteration sequence without a real LLM.
type scriptedProvider struct {
	responses []llm.Response
	calls     int
}

func (p *scriptedProvider) Generate(ctx context.Context, messages []llm.Message, toolDefs []llm.ToolDefinition) (llm.Response, error) {
	r := p.responses[p.calls]
	p.calls++
	return r, nil
}

func (p *scriptedProvider) GenerateStructured(ctx context.Context, messages []llm.Message, toolDefs []llm.ToolDefinition, cfg llm.StructuredOutputConfig) (llm.Response, error) {
	return p.Generate(ctx, messages, toolDefs)
}

func (p *scriptedProvider) GenerateStreaming(ctx context.Context, messages []llm.Message, toolDefs []llm.ToolDefinition) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) ModelName() string { return "scripted" }
func (p *scriptedProvider) Close() error       { return nil }

func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.New()
	require.NoError(t, r.Register(tools.NewFinalAnswerDescriptor()))
	require.NoError(t, r.Register(tools.NewCreateReportDescriptor()))
	require.NoError(t, r.Register(tools.NewClarificationDescriptor()))
	return r
}

func TestEngineRunReachesFinalAnswer(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{Name: "final_answer", Arguments: map[string]any{"answer": "done", "status": "completed"}}}},
	}}
	cfg := config.EngineConfig{Strategy: "native_tool_call", MaxIterations: 5, MaxSearches: 3, MaxClarifications: 2}
	e, err := New(provider, newTestRegistry(t), cfg)
	require.NoError(t, err)

	agentCtx := agentcontext.New()
	sink := stream.New()

	var progressed []int
	err = e.Run(context.Background(), agentCtx, sink, "what is the weather", func(it int) { progressed = append(progressed, it) })
	require.NoError(t, err)
	require.Equal(t, agentcontext.StateCompleted, agentCtx.GetState())
	require.NotNil(t, agentCtx.ExecutionResult)
	require.Equal(t, "done", *agentCtx.ExecutionResult)
	require.Equal(t, []int{1}, progressed)
}

func TestEngineRunSuspendsForClarificationThenResumes(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{Name: "clarification", Arguments: map[string]any{"question": "which city?"}}}},
		{ToolCalls: []llm.ToolCall{{Name: "final_answer", Arguments: map[string]any{"answer": "it is sunny", "status": "completed"}}}},
	}}
	cfg := config.EngineConfig{Strategy: "native_tool_call", MaxIterations: 5, MaxSearches: 3, MaxClarifications: 2}
	e, err := New(provider, newTestRegistry(t), cfg)
	require.NoError(t, err)

	agentCtx := agentcontext.New()
	sink := stream.New()

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), agentCtx, sink, "weather?", nil) }()

	require.Eventually(t, func() bool {
		return agentCtx.GetState() == agentcontext.StateWaitingForClarification
	}, 1e9, 1e6)

	require.NoError(t, agentCtx.ProvideClarification("Paris", tools.ClarificationTemplate))

	err = <-done
	require.NoError(t, err)
	require.Equal(t, agentcontext.StateCompleted, agentCtx.GetState())
	require.Equal(t, 1, agentCtx.ClarificationsUsed)
}

func TestEngineRunForcesFinalAnswerOnBudgetExhaustion(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{Name: "create_report", Arguments: map[string]any{"summary": "partial"}}}},
	}}
	cfg := config.EngineConfig{Strategy: "native_tool_call", MaxIterations: 1, MaxSearches: 3, MaxClarifications: 2}
	e, err := New(provider, newTestRegistry(t), cfg)
	require.NoError(t, err)

	agentCtx := agentcontext.New()
	sink := stream.New()

	err = e.Run(context.Background(), agentCtx, sink, "research something", nil)
	require.NoError(t, err)
	require.Equal(t, agentcontext.StateCompleted, agentCtx.GetState())
}

func TestEngineRunRejectsDisallowedTool(t *testing.T) {
	r := tools.New()
	require.NoError(t, r.Register(tools.NewFinalAnswerDescriptor()))

	provider := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{Name: "web_search", Arguments: map[string]any{"query": "x"}}}},
		{ToolCalls: []llm.ToolCall{{Name: "final_answer", Arguments: map[string]any{"answer": "ok", "status": "completed"}}}},
	}}
	cfg := config.EngineConfig{Strategy: "native_tool_call", MaxIterations: 5, MaxSearches: 3, MaxClarifications: 2}
	e, err := New(provider, r, cfg)
	require.NoError(t, err)

	agentCtx := agentcontext.New()
	sink := stream.New()

	err = e.Run(context.Background(), agentCtx, sink, "query", nil)
	require.NoError(t, err)
	require.Equal(t, agentcontext.StateCompleted, agentCtx.GetState())
}
