// Package executor implements the Job Executor (C8): binds a popped
// Job Record to an Agent Loop Engine run, installs the progress and
// streaming translation listeners, and handles cooperative
// cancellation (spec.md §4.8).
//
// Grounded on pkg/runner/runner.go's Config/Runner/New job-binding
// pattern, retargeted from binding one ADK-go agent.Agent per session
// to binding one internal/engine.Engine per popped job.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/arborfoundry/scoutagent/internal/agentcontext"
	"github.com/arborfoundry/scoutagent/internal/apierr"
	"github.com/arborfoundry/scoutagent/internal/broker"
	"github.com/arborfoundry/scoutagent/internal/engine"
	"github.com/arborfoundry/scoutagent/internal/job"
	"github.com/arborfoundry/scoutagent/internal/queue"
	"github.com/arborfoundry/scoutagent/internal/stream"
)

// Pool runs a fixed number of worker loops, each pulling jobs from the
// queue and driving them to completion through the engine.
type Pool struct {
	q      *queue.Manager
	eng    *engine.Engine
	broker *broker.Broker

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	sinks    map[string]*stream.Sink
	contexts map[string]*agentcontext.Context
	wg       sync.WaitGroup
}

// New builds an executor Pool bound to one queue, one engine instance
// (stateless across jobs; see internal/engine.Engine), and the SSE
// broker.
func New(q *queue.Manager, eng *engine.Engine, b *broker.Broker) *Pool {
	return &Pool{
		q:        q,
		eng:      eng,
		broker:   b,
		cancels:  make(map[string]context.CancelFunc),
		sinks:    make(map[string]*stream.Sink),
		contexts: make(map[string]*agentcontext.Context),
	}
}

// Run launches workerCount worker loops; it returns once ctx is
// cancelled and all in-flight jobs have drained.
func (p *Pool) Run(ctx context.Context, workerCount int) {
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		r, err := p.q.Next(ctx)
		if err != nil {
			return
		}
		p.execute(ctx, r)
	}
}

// Sink returns the live Streaming Sink for a running job, for the SSE
// transport layer to subscribe callers that want raw token replay
// alongside broker events. Returns nil if the job isn't running.
func (p *Pool) Sink(jobID string) *stream.Sink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sinks[jobID]
}

// Lookup implements transporthttp.ClarificationStore: it resolves a
// running job_id to its Agent Context so the clarification endpoint
// can call ProvideClarification directly.
func (p *Pool) Lookup(jobID string) (*agentcontext.Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.contexts[jobID]
	return c, ok
}

// Cancel signals cooperative cancellation for a running job. Returns
// false if the job isn't currently running under this pool.
func (p *Pool) Cancel(jobID string) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[jobID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (p *Pool) execute(ctx context.Context, r *job.Record) {
	start := time.Now()
	jobCtx, cancel := context.WithCancel(ctx)

	sink := stream.New()
	agentCtx := agentcontext.New()

	p.mu.Lock()
	p.cancels[r.ID] = cancel
	p.sinks[r.ID] = sink
	p.contexts[r.ID] = agentCtx
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.cancels, r.ID)
		delete(p.sinks, r.ID)
		delete(p.contexts, r.ID)
		p.mu.Unlock()
		cancel()
		p.q.Release()
	}()

	go p.forwardChunks(r.ID, sink)

	progress := func(iteration int) {
		searchRatio := ratio(agentCtx.SearchesUsed, r.TotalSteps)
		pct := clampPercent(searchRatio*60 + stepRatio(iteration, r.TotalSteps)*40)
		step := currentStepLabel(agentCtx)
		stepsCompleted := iteration
		searches := agentCtx.SearchesUsed
		sources := agentCtx.SourceCount()
		p.q.UpdateProgress(r.ID, pct, step, &stepsCompleted, &searches, &sources)
		p.broker.JobProgress(r.ID, pct, step, &stepsCompleted, &r.TotalSteps)
	}

	runErr := p.eng.Run(jobCtx, agentCtx, sink, r.Query, progress)

	switch {
	case jobCtx.Err() != nil && ctx.Err() == nil:
		// Cancelled cooperatively (not a parent-context shutdown).
		p.q.Cancel(r.ID)
		p.broker.JobStatus(r.ID, "cancelled", nil)
	case runErr != nil:
		kind := string(apierr.KindOf(runErr))
		if kind == "" {
			kind = string(apierr.ToolError)
		}
		p.q.MarkFailed(r.ID, kind, runErr.Error())
		p.broker.JobError(r.ID, runErr.Error(), kind)
	default:
		result := &job.Result{
			FinalAnswer: valueOrEmpty(agentCtx.ExecutionResult),
			Sources:     toSourceRefs(agentCtx.Sources()),
			Metrics: job.Metrics{
				DurationMS:   time.Since(start).Milliseconds(),
				SearchesUsed: agentCtx.SearchesUsed,
				SourcesFound: agentCtx.SourceCount(),
				Iterations:   agentCtx.Iteration,
			},
		}
		p.q.MarkCompleted(r.ID, result)
		p.broker.JobStatus(r.ID, "completed", map[string]any{"final_answer": result.FinalAnswer})
	}
}

func (p *Pool) forwardChunks(jobID string, sink *stream.Sink) {
	reader := sink.Subscribe()
	for {
		chunk, ok := reader.Next()
		if !ok || chunk.Final {
			return
		}
		p.broker.Chunk(jobID, chunk.Text)
	}
}

func ratio(used, total int) float64 {
	if total <= 0 {
		return 0
	}
	r := float64(used) / float64(total)
	if r > 1 {
		r = 1
	}
	return r
}

func stepRatio(iteration, total int) float64 {
	return ratio(iteration, total)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func currentStepLabel(agentCtx *agentcontext.Context) string {
	switch agentCtx.GetState() {
	case agentcontext.StateWaitingForClarification:
		return "awaiting_clarification"
	default:
		return "researching"
	}
}

func valueOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toSourceRefs(sources []*agentcontext.Source) []job.SourceRef {
	out := make([]job.SourceRef, 0, len(sources))
	for _, s := range sources {
		out = append(out, job.SourceRef{Number: s.Number, URL: s.URL, Title: s.Title})
	}
	return out
}
