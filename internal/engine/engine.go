// Package engine implements the Agent Loop Engine (C4): the central
// reasoning→select→act state machine (spec.md §4.4).
//
// Grounded on the teacher's agent run-loop shape (iteration gating,
// streaming, tool-call protocol bookkeeping previously lived in
// pkg/agent/llmagent and pkg/reasoning/state.go's state enum), rebuilt
// around the spec's Phase R/S/A decomposition and its three pluggable
// strategies (internal/strategy) instead of the teacher's reasoning
// subclass hierarchy.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arborfoundry/scoutagent/internal/agentcontext"
	"github.com/arborfoundry/scoutagent/internal/apierr"
	"github.com/arborfoundry/scoutagent/internal/llm"
	"github.com/arborfoundry/scoutagent/internal/strategy"
	"github.com/arborfoundry/scoutagent/internal/stream"
	"github.com/arborfoundry/scoutagent/internal/tools"
	"github.com/arborfoundry/scoutagent/pkg/config"
	"github.com/arborfoundry/scoutagent/pkg/utils"
	"github.com/google/uuid"
)

// defaultSystemPrompt is the engine's own framing for the LLM; its
// wording is not spec'd content (spec.md §13 Non-goals: prompt template
// text is data, not a specified behavior).
const defaultSystemPrompt = "You are a research agent. Use the available tools to gather information, then call create_report and final_answer to conclude."

// Engine drives one job's agent loop against one Context/Sink pair. A
// fresh Engine is not required per run; Run is safe to call once per
// Context (the Context is exclusively owned by the engine that created
// it, spec.md §4.2).
type Engine struct {
	provider llm.Provider
	registry *tools.Registry
	strat    strategy.Strategy
	cfg      config.EngineConfig
	tokens   *utils.TokenCounter
}

// New builds an Engine wired to one LLM provider, the process-wide
// Tool Registry, and the configured Phase R/S strategy. A token counter
// is built for provider.ModelName() when cfg.MaxContextTokens > 0; if
// tiktoken doesn't recognize the model it falls back to cl100k_base
// (pkg/utils.TokenCounter), so this never fails engine construction.
func New(provider llm.Provider, registry *tools.Registry, cfg config.EngineConfig) (*Engine, error) {
	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	var counter *utils.TokenCounter
	if cfg.MaxContextTokens > 0 {
		counter, err = utils.NewTokenCounter(provider.ModelName())
		if err != nil {
			slog.Warn("engine: token counter unavailable, context trimming disabled", "error", err)
		}
	}
	return &Engine{provider: provider, registry: registry, strat: strat, cfg: cfg, tokens: counter}, nil
}

// Run executes the agent loop for one query, writing progress to sink
// and terminal state to agentCtx, until it reaches COMPLETED or FAILED
// (spec.md §4.4 Termination). progressFn, if non-nil, is called after
// every completed iteration with the iteration number so a caller
// (internal/executor) can translate it into Job Record progress
// updates.
func (e *Engine) Run(ctx context.Context, agentCtx *agentcontext.Context, sink *stream.Sink, query string, progressFn func(iteration int)) error {
	agentCtx.AppendTurn(agentcontext.RoleUser, query, nil)

	baseToolSet := append(e.registry.ListByCategory(tools.CategorySystem), e.registry.ListByCategory(tools.CategoryResearch)...)

	for {
		select {
		case <-ctx.Done():
			agentCtx.SetState(agentcontext.StateFailed)
			sink.Finish("")
			return ctx.Err()
		default:
		}

		iteration := agentCtx.BeginIteration()
		forced := iteration > e.cfg.MaxIterations

		allowed := gateToolSet(baseToolSet, iteration-1, e.cfg, agentCtx.SearchesUsed, agentCtx.ClarificationsUsed)

		var record *agentcontext.ReasoningRecord
		var resp llm.Response
		var err error

		if forced {
			record = &agentcontext.ReasoningRecord{Reasoning: "budget exhausted", TaskCompleted: true}
		} else {
			record, resp, err = e.reasonWithRetry(ctx, agentCtx, allowed)
			if err != nil {
				agentCtx.AppendTurn(agentcontext.RoleAssistant, fmt.Sprintf("reasoning error: %v", err), nil)
				sink.Push(fmt.Sprintf("iteration %d failed: %v", iteration, err))
				if progressFn != nil {
					progressFn(iteration)
				}
				continue
			}
		}

		agentCtx.AppendTurn(agentcontext.RoleAssistant, record.Reasoning, nil)
		sink.Push(record.Reasoning)

		var invocation strategy.Invocation
		if forced {
			invocation = strategy.Invocation{ToolName: "final_answer", Arguments: map[string]any{"answer": record.Reasoning, "status": "completed"}}
		} else {
			invocation, err = e.strat.Select(record, resp)
			if err != nil {
				agentCtx.AppendTurn(agentcontext.RoleAssistant, fmt.Sprintf("selection error: %v", err), nil)
				continue
			}
		}

		if !forced && !containsTool(allowed, invocation.ToolName) {
			invErr := apierr.New(apierr.InvalidTool, fmt.Sprintf("tool %q not permitted this iteration", invocation.ToolName))
			agentCtx.AppendTurn(agentcontext.RoleTool, invErr.Error(), &agentcontext.ToolCallMeta{ID: uuid.NewString(), Name: invocation.ToolName})
			sink.Push(invErr.Error())
			if progressFn != nil {
				progressFn(iteration)
			}
			continue
		}

		callID := uuid.NewString()
		agentCtx.Conversation[len(agentCtx.Conversation)-1].ToolCall = &agentcontext.ToolCallMeta{ID: callID, Name: invocation.ToolName, Args: invocation.Arguments}

		result, execErr := tools.ExecuteTool(ctx, e.registry, invocation.ToolName, agentCtx, invocation.Arguments)
		if execErr != nil {
			result = apierr.Wrap(apierr.ToolError, "tool execution failed", execErr).Error()
			slog.Warn("engine: tool execution failed", "tool", invocation.ToolName, "error", execErr)
		}
		agentCtx.AppendTurn(agentcontext.RoleTool, result, &agentcontext.ToolCallMeta{ID: callID, Name: invocation.ToolName})
		sink.Push(result)

		if progressFn != nil {
			progressFn(iteration)
		}

		if invocation.ToolName == "clarification" && execErr == nil {
			agentCtx.SetState(agentcontext.StateWaitingForClarification)
			sink.Finish("")
			<-agentCtx.AwaitClarificationLatch()
			agentCtx.RearmClarificationLatch()
			continue
		}

		switch agentCtx.GetState() {
		case agentcontext.StateCompleted:
			sink.Finish(valueOrEmpty(agentCtx.ExecutionResult))
			return nil
		case agentcontext.StateFailed:
			sink.Finish(valueOrEmpty(agentCtx.ExecutionResult))
			return apierr.New(apierr.ToolError, "job ended in FAILED state")
		}
	}
}

// reasonWithRetry implements spec.md §4.4's failure semantics: an LLM
// error is retried at most once per iteration with a guidance note
// appended, then fails the iteration with LLM_ERROR.
func (e *Engine) reasonWithRetry(ctx context.Context, agentCtx *agentcontext.Context, allowed []tools.Descriptor) (*agentcontext.ReasoningRecord, llm.Response, error) {
	messages := trimToTokenBudget(e.tokens, buildMessages(defaultSystemPrompt, agentCtx.Conversation), e.cfg.MaxContextTokens)
	record, resp, err := e.strat.Reason(ctx, e.provider, messages, allowed)
	if err == nil {
		return record, resp, nil
	}

	guided := append(append([]llm.Message{}, messages...), llm.Message{
		Role:    "system",
		Content: fmt.Sprintf("Your previous response was malformed (%v). Respond again following the required structure exactly.", err),
	})
	record, resp, err2 := e.strat.Reason(ctx, e.provider, guided, allowed)
	if err2 != nil {
		return nil, llm.Response{}, apierr.Wrap(apierr.LLMError, "reasoning failed after one retry", err2)
	}
	return record, resp, nil
}

func valueOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
