package engine

import (
	"github.com/arborfoundry/scoutagent/internal/agentcontext"
	"github.com/arborfoundry/scoutagent/internal/llm"
	"github.com/arborfoundry/scoutagent/pkg/utils"
)

// buildMessages converts the Agent Context's conversation transcript
// into the generic llm.Message form the provider speaks, prefixed with
// the system prompt for this job.
func buildMessages(systemPrompt string, conv []agentcontext.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(conv)+1)
	if systemPrompt != "" {
		out = append(out, llm.Message{Role: "system", Content: systemPrompt})
	}
	for _, t := range conv {
		m := llm.Message{Role: string(t.Role), Content: t.Content}
		if t.ToolCall != nil {
			switch t.Role {
			case agentcontext.RoleAssistant:
				m.ToolCalls = []llm.ToolCall{{ID: t.ToolCall.ID, Name: t.ToolCall.Name, Arguments: t.ToolCall.Args}}
			case agentcontext.RoleTool:
				m.ToolCallID = t.ToolCall.ID
				m.Name = t.ToolCall.Name
			}
		}
		out = append(out, m)
	}
	return out
}

// trimToTokenBudget drops the oldest non-system turns until messages
// fits within maxTokens, counted with counter. The system prompt (if
// present as the first message) is always kept. A nil counter or
// maxTokens <= 0 disables trimming (spec.md §4.4 is silent on context
// windows; this only protects against provider-side truncation once a
// job's conversation grows long across many iterations).
func trimToTokenBudget(counter *utils.TokenCounter, messages []llm.Message, maxTokens int) []llm.Message {
	if counter == nil || maxTokens <= 0 || len(messages) == 0 {
		return messages
	}

	var system *llm.Message
	rest := messages
	if messages[0].Role == "system" {
		system = &messages[0]
		rest = messages[1:]
	}

	budget := maxTokens
	if system != nil {
		budget -= counter.CountMessages([]utils.Message{{Role: system.Role, Content: system.Content}})
	}
	if budget < 0 {
		budget = 0
	}

	converted := make([]utils.Message, len(rest))
	for i, m := range rest {
		converted[i] = utils.Message{Role: m.Role, Content: m.Content}
	}
	fitted := counter.FitWithinLimit(converted, budget)

	kept := rest[len(rest)-len(fitted):]
	if system == nil {
		return kept
	}
	out := make([]llm.Message, 0, len(kept)+1)
	out = append(out, *system)
	out = append(out, kept...)
	return out
}
