// Package config loads and validates the orchestrator's configuration.
//
// Grounded on the teacher's pkg/config/loader.go pipeline (YAML parse ->
// env-var expansion -> mapstructure decode); the Config shape itself is
// new, scoped to SPEC_FULL.md §10.3's sections instead of the teacher's
// multi-agent/RAG/auth schema.
package config

import "fmt"

// Config is the top-level, process-wide configuration.
type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	Queue         QueueConfig         `yaml:"queue"`
	Engine        EngineConfig        `yaml:"engine"`
	Broker        BrokerConfig        `yaml:"broker"`
	Server        ServerConfig        `yaml:"server"`
	RateLimit     RateLimitConfig     `yaml:"ratelimit"`
	Search        SearchConfig        `yaml:"search"`
	Observability ObservabilityConfig `yaml:"observability"`
	LogLevel      string              `yaml:"log_level"`
	LogFormat     string              `yaml:"log_format"`
}

// ObservabilityConfig selects the tracing/metrics behavior
// pkg/observability.NewManager builds at startup.
type ObservabilityConfig struct {
	TracingEnabled   bool    `yaml:"tracing_enabled"`
	TracingSampling  float64 `yaml:"tracing_sampling_ratio"`
	MetricsEnabled   bool    `yaml:"metrics_enabled"`
	MetricsNamespace string  `yaml:"metrics_namespace"`
}

// LLMConfig configures the single LLM provider the engine reasons
// against. Provider protocol and prompt text are out of scope per
// spec.md; this only carries connection/model selection.
type LLMConfig struct {
	Type        string  `yaml:"type"` // anthropic | openai | ollama
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Host        string  `yaml:"host"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSec  int     `yaml:"timeout_seconds"`
	MaxRetries  int     `yaml:"max_retries"`
}

// QueueConfig configures the Job Queue & Lifecycle Manager (C6).
type QueueConfig struct {
	MaxConcurrentJobs   int    `yaml:"max_concurrent_jobs"`
	QueueCeiling        int    `yaml:"queue_ceiling"`
	CompletedRetention  string `yaml:"completed_retention"` // e.g. "24h"
	PersistenceDir      string `yaml:"persistence_dir"`
	PersistIntervalSec  int    `yaml:"persist_interval_seconds"`
	CleanupIntervalSec  int    `yaml:"cleanup_interval_seconds"`
}

// EngineConfig configures the Agent Loop Engine (C4)'s hard budgets and
// chosen pluggable strategy (spec.md §4.4, §9).
type EngineConfig struct {
	Strategy          string `yaml:"strategy"` // planner_with_embedded_tool | native_tool_call | two_phase
	MaxIterations     int    `yaml:"max_iterations"`
	MaxSearches       int    `yaml:"max_searches"`
	MaxClarifications int    `yaml:"max_clarifications"`

	// MaxContextTokens bounds the token-counted transcript handed to the
	// provider each iteration; 0 disables trimming. Counted with the
	// model's own tiktoken encoding (pkg/utils.TokenCounter), falling
	// back to cl100k_base for non-OpenAI models.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// BrokerConfig configures the SSE Fan-Out Broker (C7). KeepaliveSeconds
// is defaulted but not read: the SSE handler in internal/transporthttp
// sends a keepalive every 30 seconds regardless of its value.
type BrokerConfig struct {
	SubscriberBufferSize int `yaml:"subscriber_buffer_size"`
	KeepaliveSeconds     int `yaml:"keepalive_seconds"`
}

// ServerConfig configures the thin HTTP/SSE transport.
type ServerConfig struct {
	BindAddr string `yaml:"bind_addr"`
}

// RateLimitConfig optionally enables per-submitter admission limiting
// (internal/queue), wired onto pkg/ratelimit.
type RateLimitConfig struct {
	Enabled            bool `yaml:"enabled"`
	MaxSubmitsPerHour  int  `yaml:"max_submits_per_hour"`
}

// SearchConfig configures the web_search and extract_page_content tools
// (internal/tools) the Agent Loop Engine drives during the Action phase.
type SearchConfig struct {
	Endpoint           string `yaml:"endpoint"`
	APIKeyEnv          string `yaml:"api_key_env"`
	PageExtractMaxBytes int64 `yaml:"page_extract_max_bytes"`
}

// DefaultsForDeepLevel scales default search/iteration/clarification
// budgets with deep_level, mirroring the Python original's settings.py
// deep-level defaults (see SPEC_FULL.md §12). Purely a default-selection
// convenience: the hard gating in Engine remains enforced regardless of
// where the numbers came from.
func DefaultsForDeepLevel(level int) (maxSearches, maxIterations, maxClarifications int) {
	if level < 0 {
		level = 0
	}
	if level > 5 {
		level = 5
	}
	maxSearches = 2 + level*2
	maxIterations = 4 + level*3
	maxClarifications = 1
	return
}

// SetDefaults fills zero-valued fields with sane defaults, grounded on
// the teacher's SetDefaults-then-Validate loader pipeline step.
func (c *Config) SetDefaults() {
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.TimeoutSec == 0 {
		c.LLM.TimeoutSec = 120
	}
	if c.Queue.MaxConcurrentJobs == 0 {
		c.Queue.MaxConcurrentJobs = 3
	}
	if c.Queue.QueueCeiling == 0 {
		c.Queue.QueueCeiling = 1000
	}
	if c.Queue.CompletedRetention == "" {
		c.Queue.CompletedRetention = "24h"
	}
	if c.Queue.PersistIntervalSec == 0 {
		c.Queue.PersistIntervalSec = 60
	}
	if c.Queue.CleanupIntervalSec == 0 {
		c.Queue.CleanupIntervalSec = 3600
	}
	if c.Engine.Strategy == "" {
		c.Engine.Strategy = "planner_with_embedded_tool"
	}
	if c.Engine.MaxIterations == 0 {
		c.Engine.MaxIterations = 10
	}
	if c.Engine.MaxSearches == 0 {
		c.Engine.MaxSearches = 6
	}
	if c.Engine.MaxClarifications == 0 {
		c.Engine.MaxClarifications = 1
	}
	if c.Broker.SubscriberBufferSize == 0 {
		c.Broker.SubscriberBufferSize = 100
	}
	if c.Broker.KeepaliveSeconds == 0 {
		c.Broker.KeepaliveSeconds = 30
	}
	if c.Server.BindAddr == "" {
		c.Server.BindAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Search.PageExtractMaxBytes == 0 {
		c.Search.PageExtractMaxBytes = 2 << 20
	}
}

// Validate checks required fields after defaulting.
func (c *Config) Validate() error {
	switch c.LLM.Type {
	case "anthropic", "openai", "ollama":
	default:
		return fmt.Errorf("llm.type must be one of anthropic|openai|ollama, got %q", c.LLM.Type)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Queue.MaxConcurrentJobs < 1 {
		return fmt.Errorf("queue.max_concurrent_jobs must be >= 1")
	}
	switch c.Engine.Strategy {
	case "planner_with_embedded_tool", "native_tool_call", "two_phase":
	default:
		return fmt.Errorf("engine.strategy must be one of planner_with_embedded_tool|native_tool_call|two_phase, got %q", c.Engine.Strategy)
	}
	return nil
}
