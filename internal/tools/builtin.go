package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/arborfoundry/scoutagent/internal/agentcontext"
)

// ClarificationTemplate formats the text a user supplies via
// provide_clarification into a conversation turn (spec.md §4.4).
func ClarificationTemplate(text string) string {
	return fmt.Sprintf("Clarification: %s", text)
}

// NewClarificationDescriptor builds the unique suspending tool
// (spec.md §4.1, §4.4). Its executor only records the request in the
// transcript; the engine itself performs the actual suspension
// (set state, finish C3, arm latch, block) after Phase A, per spec.md
// §4.4 — the executor stays a pure textual-result function like every
// other tool.
func NewClarificationDescriptor() Descriptor {
	return Descriptor{
		Name:        "clarification",
		Description: "Ask the user a clarifying question before continuing research.",
		Category:    CategorySystem,
		Suspending:  true,
		Parameters: map[string]any{
			"question": map[string]any{"type": "string", "description": "The question to ask the user"},
		},
		Required: []string{"question"},
		Execute: func(ctx context.Context, agentCtx *agentcontext.Context, args map[string]any) (string, error) {
			question, _ := args["question"].(string)
			if question == "" {
				return "", fmt.Errorf("clarification: question is required")
			}
			agentCtx.AppendTurn(agentcontext.RoleAssistant, question, &agentcontext.ToolCallMeta{Name: "clarification", Args: args})
			return question, nil
		},
	}
}

// NewCreateReportDescriptor builds the create_report research tool. It
// assembles the accumulated sources into a plain-text report; rendering
// to a file format is the caller's concern (spec.md §13 Non-goals).
func NewCreateReportDescriptor() Descriptor {
	return Descriptor{
		Name:        "create_report",
		Description: "Assemble the research gathered so far into a structured report with cited sources.",
		Category:    CategoryResearch,
		Parameters: map[string]any{
			"summary": map[string]any{"type": "string", "description": "A synthesized summary of the findings"},
		},
		Required: []string{"summary"},
		Execute: func(ctx context.Context, agentCtx *agentcontext.Context, args map[string]any) (string, error) {
			summary, _ := args["summary"].(string)
			if summary == "" {
				return "", fmt.Errorf("create_report: summary is required")
			}

			var sb strings.Builder
			sb.WriteString(summary)
			sb.WriteString("\n\nSources:\n")
			for _, s := range agentCtx.Sources() {
				fmt.Fprintf(&sb, "[%d] %s — %s\n", s.Number, s.Title, s.URL)
			}
			return sb.String(), nil
		},
	}
}

// NewFinalAnswerDescriptor builds the unique terminal tool (spec.md
// §4.1). Its executor sets context.state and context.execution_result,
// the two documented side effects beyond the general sources/searches
// rule.
func NewFinalAnswerDescriptor() Descriptor {
	return Descriptor{
		Name:        "final_answer",
		Description: "Deliver the final answer to the research task and end the job.",
		Category:    CategorySystem,
		Terminal:    true,
		Parameters: map[string]any{
			"answer": map[string]any{"type": "string", "description": "The final answer text"},
			"status": map[string]any{"type": "string", "description": "completed or failed", "enum": []string{"completed", "failed"}},
		},
		Required: []string{"answer"},
		Execute: func(ctx context.Context, agentCtx *agentcontext.Context, args map[string]any) (string, error) {
			answer, _ := args["answer"].(string)
			status, _ := args["status"].(string)
			if status == "" {
				status = "completed"
			}

			agentCtx.SetExecutionResult(answer)
			if status == "failed" {
				agentCtx.SetState(agentcontext.StateFailed)
			} else {
				agentCtx.SetState(agentcontext.StateCompleted)
			}
			return answer, nil
		},
	}
}

// RegisterBuiltins registers the spec's closed tool set on r
// (spec.md §4.1: startup-populated, process-wide).
func RegisterBuiltins(r *Registry, search SearchProvider, extractor PageExtractor) error {
	descriptors := []Descriptor{
		NewWebSearchDescriptor(search),
		NewExtractPageContentDescriptor(extractor),
		NewClarificationDescriptor(),
		NewCreateReportDescriptor(),
		NewFinalAnswerDescriptor(),
	}
	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}
