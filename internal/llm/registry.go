package llm

import (
	"fmt"
	"os"

	"github.com/arborfoundry/scoutagent/pkg/config"
)

// New constructs the single configured Provider. Only one LLM provider
// backs the engine at a time (spec.md Non-goals: no multi-provider
// routing), grounded on pkg/llms/registry.go's switch-on-type
// construction, simplified down from its multi-provider pool.
func New(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Type {
	case "anthropic":
		return NewAnthropicProvider(resolveAPIKey(cfg), cfg)
	case "openai":
		return NewOpenAIProvider(resolveAPIKey(cfg), cfg)
	case "ollama":
		return NewOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider type %q", cfg.Type)
	}
}

func resolveAPIKey(cfg config.LLMConfig) string {
	if cfg.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(cfg.APIKeyEnv)
}
