package observability

import (
	"context"
	"sync"
	"time"
)

// Metrics is the recording surface the domain calls on its hot paths:
// tool execution, inbound HTTP requests, and queue admission
// decisions. RecordLLMCall is part of the surface, but no LLM provider
// in this tree calls it. PrometheusMetrics and NoopMetrics both satisfy
// it.
type Metrics interface {
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration, responseSize int)
	RecordQueueAdmission(ctx context.Context, accepted bool, reason string)
}

var (
	globalMu      sync.RWMutex
	globalMetrics Metrics = NoopMetrics{}
)

// SetGlobalMetrics installs the process-wide Metrics implementation.
// Passing nil restores the no-op default.
func SetGlobalMetrics(m Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if m == nil {
		m = NoopMetrics{}
	}
	globalMetrics = m
}

// GetGlobalMetrics returns the installed Metrics, or a no-op if
// SetGlobalMetrics was never called. Callers never need a nil check.
func GetGlobalMetrics() Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}
