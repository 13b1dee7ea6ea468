// Package job implements the Job Record (C5): the persisted, passive
// value object describing one admitted unit of research work.
//
// Grounded on pkg/task/task.go's mutex-guarded state-machine struct,
// trimmed from the teacher's seven-state A2A task lifecycle down to the
// five states this domain names, and retargeted onto the research-job
// field set (progress, searches_used, total_steps, ...).
package job

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the Job Record lifecycle state (spec.md §3).
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Named priority levels, layered over the validated [-100,100] range as
// ergonomic constants — mirrors the Python original's JobPriority class
// (core/job_queue.py) without altering the validated range.
const (
	PriorityLow    = -10
	PriorityNormal = 0
	PriorityHigh   = 10
	PriorityUrgent = 20
)

// Result is the structured answer produced by a completed job.
type Result struct {
	FinalAnswer string         `json:"final_answer"`
	Sources     []SourceRef    `json:"sources,omitempty"`
	Metrics     Metrics        `json:"metrics"`
	Artifacts   []string       `json:"artifacts,omitempty"`
}

// SourceRef is the subset of a Source carried into a Job's result.
type SourceRef struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Title  string `json:"title"`
}

// Metrics accompanies a completed Result.
type Metrics struct {
	DurationMS   int64 `json:"duration_ms"`
	SearchesUsed int   `json:"searches_used"`
	SourcesFound int   `json:"sources_found"`
	Iterations   int   `json:"iterations"`
}

// Error is the typed error record attached to a failed job.
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Request is the validated input to Submit (spec.md §6).
type Request struct {
	Query    string            `json:"query"`
	AgentType string           `json:"agent_type"`
	DeepLevel int              `json:"deep_level"`
	Priority  int              `json:"priority"`
	Tags      []string         `json:"tags"`
	Metadata  map[string]any   `json:"metadata"`
}

// Record is the Job Record (C5). All mutation goes through its methods,
// which hold the embedded mutex for the duration of the write — owning
// callers (internal/queue) never touch fields directly.
type Record struct {
	mu sync.RWMutex

	ID        string         `json:"job_id"`
	Query     string         `json:"query"`
	AgentType string         `json:"agent_type"`
	DeepLevel int            `json:"deep_level"`
	Priority  int            `json:"priority"`
	Tags      []string       `json:"tags"`
	Metadata  map[string]any `json:"metadata"`

	State State `json:"state"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Progress       float64 `json:"progress"`
	CurrentStep    string  `json:"current_step"`
	StepsCompleted int     `json:"steps_completed"`
	TotalSteps     int     `json:"total_steps"`

	SearchesUsed int `json:"searches_used"`
	SourcesFound int `json:"sources_found"`

	Result *Result `json:"result,omitempty"`
	Err    *Error  `json:"error,omitempty"`
}

// TotalSteps implements spec.md §3/§8's formula: total_steps = 5 * (3 *
// deep_level + 1). Confirmed against the Python original's
// JobQueueItem._calculate_total_steps (core/job_queue.py).
func TotalSteps(deepLevel int) int {
	return 5 * (3*deepLevel + 1)
}

// New constructs a fresh PENDING Record from a validated Request.
func New(req Request) *Record {
	now := time.Now()
	return &Record{
		ID:         uuid.NewString(),
		Query:      req.Query,
		AgentType:  req.AgentType,
		DeepLevel:  req.DeepLevel,
		Priority:   req.Priority,
		Tags:       append([]string(nil), req.Tags...),
		Metadata:   req.Metadata,
		State:      StatePending,
		CreatedAt:  now,
		TotalSteps: TotalSteps(req.DeepLevel),
	}
}

// Snapshot returns a value copy safe to hand to callers outside the
// owning queue (read-only, per spec.md §5's shared-resource policy).
func (r *Record) Snapshot() Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := *r
	cp.mu = sync.RWMutex{}
	cp.Tags = append([]string(nil), r.Tags...)
	return cp
}

// MarkStarted transitions PENDING -> RUNNING.
func (r *Record) MarkStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.State = StateRunning
	r.StartedAt = &now
}

// UpdateProgress clamps progress to [0,100] and updates the step fields
// in one locked write (spec.md §4.6 update_progress).
func (r *Record) UpdateProgress(progress float64, step string, stepsCompleted, searches, sources *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	r.Progress = progress
	r.CurrentStep = step
	if stepsCompleted != nil {
		r.StepsCompleted = *stepsCompleted
	}
	if searches != nil {
		r.SearchesUsed = *searches
	}
	if sources != nil {
		r.SourcesFound = *sources
	}
}

// MarkCompleted transitions RUNNING -> COMPLETED. Invariant: progress ==
// 100.0 iff state == COMPLETED (spec.md §3).
func (r *Record) MarkCompleted(result *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.State = StateCompleted
	r.CompletedAt = &now
	r.Progress = 100.0
	r.Result = result
}

// MarkFailed transitions RUNNING -> FAILED.
func (r *Record) MarkFailed(kind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.State = StateFailed
	r.CompletedAt = &now
	r.Err = &Error{Kind: kind, Message: message}
}

// MarkCancelled transitions PENDING or RUNNING -> CANCELLED. Returns
// false if the record is already terminal (double-cancel is a no-op,
// per spec.md §8's idempotence property).
func (r *Record) MarkCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State.IsTerminal() {
		return false
	}
	now := time.Now()
	r.State = StateCancelled
	r.CompletedAt = &now
	r.Result = nil
	return true
}

// DemoteToPending resets a RUNNING record back to PENDING; used on
// crash recovery (spec.md §4.6).
func (r *Record) DemoteToPending() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.State = StatePending
	r.StartedAt = nil
}

// MarshalForPersistence serializes the record's public fields.
func (r *Record) MarshalForPersistence() ([]byte, error) {
	snap := r.Snapshot()
	return json.Marshal(snap)
}

// FromPersistence reconstructs a Record from its serialized form.
// RUNNING records are restored as PENDING per spec.md §8's round-trip
// property ("RUNNING records restore as PENDING").
func FromPersistence(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, errors.New("job: persisted record missing id")
	}
	if r.State == StateRunning {
		r.State = StatePending
		r.StartedAt = nil
	}
	return &r, nil
}

// Validate applies spec.md §4.6's submit validation rules.
func (req Request) Validate() error {
	if req.Query == "" {
		return errors.New("query must not be empty")
	}
	if req.DeepLevel < 0 || req.DeepLevel > 5 {
		return errors.New("deep_level must be in [0,5]")
	}
	if req.Priority < -100 || req.Priority > 100 {
		return errors.New("priority must be in [-100,100]")
	}
	if len(req.Tags) > 10 {
		return errors.New("at most 10 tags are allowed")
	}
	return nil
}
