package engine

import (
	"github.com/arborfoundry/scoutagent/internal/tools"
	"github.com/arborfoundry/scoutagent/pkg/config"
)

// gateToolSet applies the dynamic tool gating rules (spec.md §4.4, in
// order, intersections accumulate). These bounds are hard: the engine
// never exceeds them regardless of what the LLM requests.
func gateToolSet(base []tools.Descriptor, iteration int, cfg config.EngineConfig, searchesUsed, clarificationsUsed int) []tools.Descriptor {
	if iteration >= cfg.MaxIterations {
		var terminal []tools.Descriptor
		for _, d := range base {
			if d.Terminal {
				terminal = append(terminal, d)
			}
		}
		return terminal
	}

	out := make([]tools.Descriptor, 0, len(base))
	for _, d := range base {
		if d.Suspending && clarificationsUsed >= cfg.MaxClarifications {
			continue
		}
		if d.Name == "web_search" && searchesUsed >= cfg.MaxSearches {
			continue
		}
		out = append(out, d)
	}
	return out
}

func containsTool(set []tools.Descriptor, name string) bool {
	for _, d := range set {
		if d.Name == name {
			return true
		}
	}
	return false
}
