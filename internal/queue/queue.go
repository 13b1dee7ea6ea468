// Package queue implements the Job Queue & Lifecycle Manager (C6):
// admission, priority scheduling, a concurrency cap, persistence,
// crash recovery, cleanup, and cancellation over internal/job.Record
// values (spec.md §4.6).
//
// Grounded on pkg/task's Service/InMemoryService interface shape,
// extended with a priority heap (container/heap, stdlib — no corpus
// repo carries a priority-queue library and this is a small, self-
// contained interface implementation; see DESIGN.md) for ordering, and
// on pkg/runner/runner.go's background-goroutine-on-ticker pattern for
// the persistence and cleanup workers.
package queue

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/arborfoundry/scoutagent/internal/apierr"
	"github.com/arborfoundry/scoutagent/internal/job"
	"github.com/arborfoundry/scoutagent/pkg/config"
	"github.com/arborfoundry/scoutagent/pkg/observability"
	"github.com/arborfoundry/scoutagent/pkg/ratelimit"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = observability.GetTracer("scoutagent.queue")

// Event is the payload delivered to state listeners (spec.md §4.6
// add_state_listener).
type Event struct {
	Record job.Record
	Name   string
}

// Listener receives lifecycle notifications. Panics inside a listener
// are isolated — they never interrupt the manager (spec.md §4.6
// failure semantics).
type Listener func(Event)

// heapItem orders pending jobs by priority desc, then created_at asc
// (spec.md §4.5/§4.6: "highest-priority-first-pop").
type heapItem struct {
	record *job.Record
	index  int
}

type priorityHeap []*heapItem

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	a, b := h[i].record, h[j].record
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *priorityHeap) Push(x any) {
	item := x.(*heapItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Manager is the Job Queue & Lifecycle Manager (C6).
type Manager struct {
	mu sync.Mutex

	cfg config.QueueConfig

	pending   priorityHeap
	running   map[string]*job.Record
	completed map[string]*job.Record
	all       map[string]*job.Record

	sem chan struct{}

	listeners []Listener

	limiter ratelimit.RateLimiter

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a Manager. limiter may be nil to disable the optional
// per-submitter admission guard.
func New(cfg config.QueueConfig, limiter ratelimit.RateLimiter) *Manager {
	m := &Manager{
		cfg:       cfg,
		running:   make(map[string]*job.Record),
		completed: make(map[string]*job.Record),
		all:       make(map[string]*job.Record),
		sem:       make(chan struct{}, cfg.MaxConcurrentJobs),
		limiter:   limiter,
		stop:      make(chan struct{}),
	}
	heap.Init(&m.pending)
	return m
}

// AddStateListener registers a lifecycle callback.
func (m *Manager) AddStateListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) notify(r *job.Record, name string) {
	for _, l := range m.listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("queue: listener panicked", "event", name, "recover", rec)
				}
			}()
			l(Event{Record: r.Snapshot(), Name: name})
		}()
	}
}

// Submit validates and admits a request, returning its new job_id
// (spec.md §4.6 submit). Admission outcome (accepted, or the reason
// it was refused) is recorded as both a span and a metric so queue
// pressure and rate-limit refusals show up the same way a tool
// execution failure does.
func (m *Manager) Submit(ctx context.Context, req job.Request, submitterID string) (string, error) {
	ctx, span := tracer.Start(ctx, observability.SpanQueueAdmission)
	defer span.End()

	admit := func(jobID string, err error) (string, error) {
		reason := ""
		if err != nil {
			reason = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, reason)
		} else {
			span.SetAttributes(attribute.String(observability.AttrQueueJobID, jobID))
			span.SetStatus(codes.Ok, "admitted")
		}
		observability.GetGlobalMetrics().RecordQueueAdmission(ctx, err == nil, reason)
		return jobID, err
	}

	if err := req.Validate(); err != nil {
		return admit("", apierr.Wrap(apierr.Validation, "invalid job request", err))
	}

	m.mu.Lock()
	if m.cfg.QueueCeiling > 0 && len(m.all) >= m.cfg.QueueCeiling {
		m.mu.Unlock()
		return admit("", apierr.New(apierr.QueueFull, "queue ceiling reached"))
	}
	m.mu.Unlock()

	if m.limiter != nil && submitterID != "" {
		result, err := m.limiter.CheckAndRecord(ctx, ratelimit.ScopeUser, submitterID, 0, 1)
		if err != nil {
			slog.Warn("queue: rate limit check failed, admitting anyway", "error", err)
		} else if !result.Allowed {
			return admit("", apierr.New(apierr.QueueFull, "submission rate limit exceeded: "+result.Reason))
		}
	}

	r := job.New(req)

	m.mu.Lock()
	m.all[r.ID] = r
	heap.Push(&m.pending, &heapItem{record: r})
	m.mu.Unlock()

	m.persistOne(r)
	m.notify(r, "submitted")
	return admit(r.ID, nil)
}

// Get returns a read-only snapshot of one job.
func (m *Manager) Get(jobID string) (*job.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.all[jobID]
	if !ok {
		return nil, false
	}
	snap := r.Snapshot()
	return &snap, true
}

// ListFilter restricts List's results.
type ListFilter struct {
	State  job.State
	AnyTag []string
	Limit  int
	Offset int
}

// ListResult is List's paginated response.
type ListResult struct {
	Jobs   []job.Record
	Total  int
	Limit  int
	Offset int
}

// List returns jobs sorted by created_at desc, filtered and paginated
// (spec.md §4.6 list).
func (m *Manager) List(f ListFilter) ListResult {
	m.mu.Lock()
	snaps := make([]job.Record, 0, len(m.all))
	for _, r := range m.all {
		snaps = append(snaps, r.Snapshot())
	}
	m.mu.Unlock()

	filtered := snaps[:0:0]
	for _, r := range snaps {
		if f.State != "" && r.State != f.State {
			continue
		}
		if len(f.AnyTag) > 0 && !hasAnyTag(r.Tags, f.AnyTag) {
			continue
		}
		filtered = append(filtered, r)
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].CreatedAt.After(filtered[j].CreatedAt) })

	total := len(filtered)
	limit := f.Limit
	if limit <= 0 {
		limit = total
	}
	start := f.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return ListResult{Jobs: filtered[start:end], Total: total, Limit: f.Limit, Offset: f.Offset}
}

func hasAnyTag(tags, want []string) bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}

// Cancel implements spec.md §4.6 cancel: idempotent, returns false if
// the job is already terminal.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.Lock()
	r, ok := m.all[jobID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	ok = r.MarkCancelled()
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.running, jobID)
	m.completed[jobID] = r
	m.mu.Unlock()

	m.persistOne(r)
	m.notify(r, "cancelled")
	return true
}

// Next pops the highest-priority pending job for a worker, transitions
// it to RUNNING, and blocks until both a concurrency slot and a
// pending job are available (spec.md §4.6 next). Returns an error if
// ctx is cancelled while waiting; the caller must call Release exactly
// once the job finishes.
func (m *Manager) Next(ctx context.Context) (*job.Record, error) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

	for {
		m.mu.Lock()
		for m.pending.Len() > 0 {
			item := heap.Pop(&m.pending).(*heapItem)
			r := item.record
			if r.State == job.StateCancelled {
				continue
			}
			r.MarkStarted()
			m.running[r.ID] = r
			m.mu.Unlock()

			m.persistOne(r)
			m.notify(r, "started")
			return r, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			m.Release()
			return nil, ctx.Err()
		case <-poll.C:
		}
	}
}

// Release returns a worker's concurrency slot; call exactly once after
// a job reaches MarkCompleted/MarkFailed. Next releases its own slot
// when its wait is cancelled before a job was returned.
func (m *Manager) Release() {
	select {
	case <-m.sem:
	default:
	}
}

// MarkCompleted transitions a RUNNING job to COMPLETED (spec.md §4.6).
func (m *Manager) MarkCompleted(jobID string, result *job.Result) {
	m.mu.Lock()
	r, ok := m.all[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	r.MarkCompleted(result)
	delete(m.running, jobID)
	m.completed[jobID] = r
	m.mu.Unlock()

	m.persistOne(r)
	m.notify(r, "completed")
}

// MarkFailed transitions a RUNNING job to FAILED (spec.md §4.6).
func (m *Manager) MarkFailed(jobID, kind, message string) {
	m.mu.Lock()
	r, ok := m.all[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	r.MarkFailed(kind, message)
	delete(m.running, jobID)
	m.completed[jobID] = r
	m.mu.Unlock()

	m.persistOne(r)
	m.notify(r, "failed")
}

// UpdateProgress applies a progress update and notifies listeners
// (spec.md §4.6 update_progress).
func (m *Manager) UpdateProgress(jobID string, progress float64, step string, stepsCompleted, searches, sources *int) {
	m.mu.Lock()
	r, ok := m.all[jobID]
	m.mu.Unlock()
	if !ok {
		return
	}
	r.UpdateProgress(progress, step, stepsCompleted, searches, sources)
	m.notify(r, "progress")
}

func (m *Manager) persistPath(jobID string) string {
	return filepath.Join(m.cfg.PersistenceDir, jobID+".json")
}

func (m *Manager) persistOne(r *job.Record) {
	if m.cfg.PersistenceDir == "" {
		return
	}
	data, err := r.MarshalForPersistence()
	if err != nil {
		slog.Error("queue: marshal for persistence failed", "job_id", r.ID, "error", err)
		return
	}
	if err := os.MkdirAll(m.cfg.PersistenceDir, 0o755); err != nil {
		slog.Error("queue: persistence dir create failed", "error", err)
		return
	}
	path := m.persistPath(r.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Error("queue: persist job failed", "job_id", r.ID, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		slog.Error("queue: persist job failed", "job_id", r.ID, "error", err)
	}
}

// persistAll snapshots every tracked record; used by the periodic
// persistence worker and on graceful stop (spec.md §4.6).
func (m *Manager) persistAll() {
	m.mu.Lock()
	records := make([]*job.Record, 0, len(m.all))
	for _, r := range m.all {
		records = append(records, r)
	}
	m.mu.Unlock()
	for _, r := range records {
		m.persistOne(r)
	}
}

// Start loads persisted records (crash recovery), then launches the
// background persistence and cleanup workers (spec.md §4.6).
func (m *Manager) Start(ctx context.Context) error {
	if err := m.recover(); err != nil {
		return err
	}

	persistInterval := time.Duration(m.cfg.PersistIntervalSec) * time.Second
	if persistInterval <= 0 {
		persistInterval = 60 * time.Second
	}
	cleanupInterval := time.Duration(m.cfg.CleanupIntervalSec) * time.Second
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}

	m.wg.Add(2)
	go m.runTicker(persistInterval, m.persistAll)
	go m.runTicker(cleanupInterval, m.cleanup)
	return nil
}

func (m *Manager) runTicker(interval time.Duration, fn func()) {
	defer m.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			fn()
		case <-m.stop:
			return
		}
	}
}

// Stop persists all records once more and halts the background
// workers.
func (m *Manager) Stop() {
	close(m.stop)
	m.wg.Wait()
	m.persistAll()
}

// recover implements spec.md §4.6's start()-time recovery: RUNNING
// records demote to PENDING and re-enqueue; PENDING records re-enqueue
// in priority order; terminal records restore into the completed map.
func (m *Manager) recover() error {
	if m.cfg.PersistenceDir == "" {
		return nil
	}
	entries, err := os.ReadDir(m.cfg.PersistenceDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("queue: recovery scan failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.cfg.PersistenceDir, e.Name()))
		if err != nil {
			slog.Error("queue: recovery read failed", "file", e.Name(), "error", err)
			continue
		}
		r, err := job.FromPersistence(data)
		if err != nil {
			slog.Error("queue: recovery parse failed", "file", e.Name(), "error", err)
			continue
		}
		m.all[r.ID] = r
		switch r.State {
		case job.StatePending:
			heap.Push(&m.pending, &heapItem{record: r})
		default:
			m.completed[r.ID] = r
		}
	}
	return nil
}

// cleanup removes terminal records older than the retention horizon,
// including their persisted files (spec.md §4.6 cleanup worker).
func (m *Manager) cleanup() {
	retention, err := time.ParseDuration(m.cfg.CompletedRetention)
	if err != nil || retention <= 0 {
		retention = 24 * time.Hour
	}
	horizon := time.Now().Add(-retention)

	m.mu.Lock()
	var toDelete []string
	for id, r := range m.completed {
		snap := r.Snapshot()
		if snap.CompletedAt != nil && snap.CompletedAt.Before(horizon) {
			toDelete = append(toDelete, id)
		}
	}
	for _, id := range toDelete {
		delete(m.completed, id)
		delete(m.all, id)
	}
	m.mu.Unlock()

	for _, id := range toDelete {
		if m.cfg.PersistenceDir != "" {
			if err := os.Remove(m.persistPath(id)); err != nil && !os.IsNotExist(err) {
				slog.Error("queue: cleanup file remove failed", "job_id", id, "error", err)
			}
		}
	}
	if len(toDelete) > 0 {
		slog.Info("queue: cleanup removed aged jobs", "count", len(toDelete))
	}
}
