// Package agentcontext implements the Agent Context (C2): per-agent
// mutable state exclusively owned by one Agent Loop Engine instance.
//
// Grounded on pkg/reasoning/agent_context.go's mutation-helper shape and
// pkg/reasoning/state.go's state enum, retargeted from the teacher's
// multi-agent prompt-injection helpers onto the spec's source table /
// search history / clarification latch model (spec.md §3, §4.2).
package agentcontext

import (
	"fmt"
	"sync"
	"time"
)

// State is the Agent Context lifecycle state (spec.md §3).
type State string

const (
	StateResearching           State = "researching"
	StateWaitingForClarification State = "waiting_for_clarification"
	StateCompleted             State = "completed"
	StateFailed                State = "failed"
)

// Source is a retrieved document, identified by URL within one agent
// (spec.md §3).
type Source struct {
	Number  int    `json:"number"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Content string `json:"content,omitempty"`
	Chars   int    `json:"chars"`
}

// SearchResult is one recorded search (spec.md §3).
type SearchResult struct {
	Query     string    `json:"query"`
	Answer    string    `json:"answer,omitempty"`
	Sources   []string  `json:"source_urls"`
	Timestamp time.Time `json:"timestamp"`
}

// Role is a conversation turn's speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one conversation transcript entry.
type Turn struct {
	Role     Role
	Content  string
	ToolCall *ToolCallMeta
}

// ToolCallMeta carries the optional tool-call metadata of a turn.
type ToolCallMeta struct {
	ID   string
	Name string
	Args map[string]any
}

// ReasoningRecord is the structured output of one Phase R call
// (spec.md §4.4).
type ReasoningRecord struct {
	Reasoning        string
	CurrentSituation string
	PlanStatus       string
	EnoughData       bool
	RemainingSteps   []string
	TaskCompleted    bool
}

// latch is a single-shot, re-armable wait primitive.
type latch struct {
	mu   sync.Mutex
	ch   chan struct{}
	done bool
}

func newLatch() *latch {
	return &latch{ch: make(chan struct{})}
}

func (l *latch) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done {
		l.done = true
		close(l.ch)
	}
}

func (l *latch) rearm() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ch = make(chan struct{})
	l.done = false
}

func (l *latch) wait() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ch
}

// Context is the Agent Context (C2). Exclusively owned by the engine
// that created it; the only external writer permitted is
// ProvideClarification (spec.md §4.2 invariants).
type Context struct {
	mu sync.Mutex

	Iteration           int
	SearchesUsed        int
	ClarificationsUsed  int

	sourcesByURL map[string]*Source
	sourceOrder  []string

	Searches []SearchResult

	Conversation []Turn

	State State

	clarificationLatch *latch

	ExecutionResult     *string
	CurrentStepReasoning *ReasoningRecord
}

// New creates a fresh Context in the RESEARCHING state.
func New() *Context {
	return &Context{
		sourcesByURL:       make(map[string]*Source),
		State:              StateResearching,
		clarificationLatch: newLatch(),
	}
}

// AppendTurn records one conversation turn.
func (c *Context) AppendTurn(role Role, content string, toolCall *ToolCallMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Conversation = append(c.Conversation, Turn{Role: role, Content: content, ToolCall: toolCall})
}

// InsertSource implements spec.md §4.2: if the URL already exists,
// update only its full content / char count; otherwise assign the next
// dense ordinal and append. Numbers never change once assigned and
// |sources| never decreases.
func (c *Context) InsertSource(url, title, snippet, content string) *Source {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.sourcesByURL[url]; ok {
		if content != "" {
			existing.Content = content
			existing.Chars = len(content)
		}
		return existing
	}

	s := &Source{
		Number:  len(c.sourceOrder) + 1,
		URL:     url,
		Title:   title,
		Snippet: snippet,
		Content: content,
		Chars:   len(content),
	}
	c.sourcesByURL[url] = s
	c.sourceOrder = append(c.sourceOrder, url)
	return s
}

// Sources returns the source table in insertion order.
func (c *Context) Sources() []*Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Source, 0, len(c.sourceOrder))
	for _, url := range c.sourceOrder {
		out = append(out, c.sourcesByURL[url])
	}
	return out
}

// SourceCount returns |sources|, used by executors to populate
// sources_found without copying the table.
func (c *Context) SourceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sourceOrder)
}

// RecordSearch appends a search result and increments searches_used.
func (c *Context) RecordSearch(result SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Searches = append(c.Searches, result)
	c.SearchesUsed++
}

// BeginIteration increments the monotonic iteration counter.
func (c *Context) BeginIteration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Iteration++
	return c.Iteration
}

// SetState transitions the Context's state. Only the owning engine
// should call this (ProvideClarification below is the sole exception).
func (c *Context) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.State = s
}

// GetState returns the current state.
func (c *Context) GetState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.State
}

// SetExecutionResult records the agent's final answer text.
func (c *Context) SetExecutionResult(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ExecutionResult = &text
}

// ReleaseClarificationLatch wakes any waiter once.
func (c *Context) ReleaseClarificationLatch() {
	c.clarificationLatch.release()
}

// AwaitClarificationLatch blocks until the latch is released.
func (c *Context) AwaitClarificationLatch() <-chan struct{} {
	return c.clarificationLatch.wait()
}

// RearmClarificationLatch is called by the engine between clarification
// rounds; the latch is re-armable only by the owning engine (spec.md
// §4.2).
func (c *Context) RearmClarificationLatch() {
	c.clarificationLatch.rearm()
}

// ErrNotAwaitingClarification is returned by ProvideClarification when
// the context is not currently suspended.
var ErrNotAwaitingClarification = fmt.Errorf("agentcontext: not awaiting clarification")

// ProvideClarification is the one external-write operation permitted on
// a Context outside its owning engine. It writes exactly three things:
// a conversation append, clarifications_used++, and a latch release
// (spec.md §4.2, §4.4). A second call after the latch already released
// is rejected — see spec.md §8's double-provide-clarification property.
func (c *Context) ProvideClarification(text string, template func(string) string) error {
	c.mu.Lock()
	if c.State != StateWaitingForClarification {
		c.mu.Unlock()
		return ErrNotAwaitingClarification
	}
	content := text
	if template != nil {
		content = template(text)
	}
	c.Conversation = append(c.Conversation, Turn{Role: RoleUser, Content: content})
	c.ClarificationsUsed++
	c.State = StateResearching
	c.mu.Unlock()

	c.ReleaseClarificationLatch()
	return nil
}
