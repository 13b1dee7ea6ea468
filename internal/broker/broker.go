// Package broker implements the SSE Fan-Out Broker (C7): per-job
// subscriber queues with bounded buffers and disconnect cleanup
// (spec.md §4.7). Keepalive events are sent by the SSE handler in
// internal/transporthttp, not by this package.
//
// The HTTP-transport side of this (the http.Flusher-aware response
// writer that actually streams the bytes) is grounded on
// pkg/transport/http_metrics_middleware.go's responseWriter wrapper;
// this package owns only the in-memory fan-out, independent of any
// transport.
package broker

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is one well-typed message delivered to SSE subscribers
// (spec.md §4.7).
type Event struct {
	Name      string
	Payload   map[string]any
	ID        string
	Timestamp time.Time
}

const defaultBufferSize = 100

// Subscription is a live subscriber's read handle.
type Subscription struct {
	jobID   string
	queue   chan Event
	dropped atomic.Int64
	closed  atomic.Bool
}

// Events returns the channel to range over for this subscription.
func (s *Subscription) Events() <-chan Event { return s.queue }

// Dropped reports how many events this subscriber has lost to
// overflow (spec.md §4.7: dropped events are counted).
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Broker is the SSE Fan-Out Broker (C7).
type Broker struct {
	mu          sync.Mutex
	subscribers map[string]map[*Subscription]struct{}
	bufferSize  int
}

// New builds a Broker. bufferSize <= 0 uses the spec's default of 100.
func New(bufferSize int) *Broker {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Broker{
		subscribers: make(map[string]map[*Subscription]struct{}),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new subscriber for job_id and emits the
// synthetic stream_connected event (spec.md §4.7).
func (b *Broker) Subscribe(jobID string) *Subscription {
	sub := &Subscription{jobID: jobID, queue: make(chan Event, b.bufferSize)}

	b.mu.Lock()
	set, ok := b.subscribers[jobID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subscribers[jobID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	sub.queue <- Event{Name: "stream_connected", Timestamp: time.Now()}
	return sub
}

// Unsubscribe removes a subscriber; the job_id entry is removed once
// its subscriber set empties (spec.md §4.7).
func (b *Broker) Unsubscribe(jobID string, sub *Subscription) {
	if !sub.closed.CompareAndSwap(false, true) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subscribers[jobID]
	if !ok {
		return
	}
	delete(set, sub)
	close(sub.queue)
	if len(set) == 0 {
		delete(b.subscribers, jobID)
	}
}

// Broadcast delivers event to every subscriber of job_id. Enqueueing
// is non-blocking; on overflow the event is dropped and counted
// (spec.md §4.7: favor liveness over completeness). Ordering within
// one subscriber is preserved; ordering across subscribers and across
// jobs is not guaranteed.
//
// The send happens under the same lock Unsubscribe uses to close the
// channel, so a send can never race a close: either the subscriber is
// still in the set and the send is safe, or Unsubscribe already
// removed it and this call never touches its channel.
func (b *Broker) Broadcast(jobID string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subscribers[jobID] {
		select {
		case s.queue <- event:
		default:
			s.dropped.Add(1)
		}
	}
}

// JobProgress is the job_progress helper (spec.md §4.7).
func (b *Broker) JobProgress(jobID string, progress float64, step string, stepsCompleted, totalSteps *int) {
	payload := map[string]any{"progress": progress, "step": step}
	if stepsCompleted != nil {
		payload["steps_completed"] = *stepsCompleted
	}
	if totalSteps != nil {
		payload["total_steps"] = *totalSteps
	}
	b.Broadcast(jobID, Event{Name: "job_progress", Payload: payload, Timestamp: time.Now()})
}

// JobStatus is the job_status helper (spec.md §4.7).
func (b *Broker) JobStatus(jobID, status string, extras map[string]any) {
	payload := map[string]any{"status": status}
	for k, v := range extras {
		payload[k] = v
	}
	b.Broadcast(jobID, Event{Name: "job_status", Payload: payload, Timestamp: time.Now()})
}

// JobError is the job_error helper (spec.md §4.7).
func (b *Broker) JobError(jobID, msg, kind string) {
	b.Broadcast(jobID, Event{Name: "job_error", Payload: map[string]any{"message": msg, "kind": kind}, Timestamp: time.Now()})
}

// Chunk forwards one raw streaming-sink chunk as a chunk event
// (spec.md §4.8's stream-consumer translation listener).
func (b *Broker) Chunk(jobID, text string) {
	b.Broadcast(jobID, Event{Name: "chunk", Payload: map[string]any{"text": text}, Timestamp: time.Now()})
}

// SubscriberCount reports the live subscriber count for a job, for
// tests and diagnostics.
func (b *Broker) SubscriberCount(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[jobID])
}
