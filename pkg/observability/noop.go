package observability

import (
	"context"
	"time"
)

// NoopMetrics discards every recording. It is the default before
// SetGlobalMetrics is called, and the implementation NewManager
// installs when metrics are disabled in config.
type NoopMetrics struct{}

func (NoopMetrics) RecordToolExecution(context.Context, string, time.Duration, error)         {}
func (NoopMetrics) RecordLLMCall(context.Context, string, time.Duration, int, int, error)      {}
func (NoopMetrics) RecordHTTPRequest(context.Context, string, string, int, time.Duration, int) {}
func (NoopMetrics) RecordQueueAdmission(context.Context, bool, string)                         {}

var _ Metrics = NoopMetrics{}
