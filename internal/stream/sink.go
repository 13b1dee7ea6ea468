// Package stream implements the Streaming Sink (C3): an unbounded FIFO
// of output chunks with a terminal sentinel, broadcast to any number of
// concurrent readers.
//
// Grounded on the teacher's read-until-terminal consumer loop shape
// seen in pkg/server/events.go's event processor, generalized away from
// its A2A event types onto plain opaque chunk strings (spec.md §4.3).
package stream

import "sync"

// Chunk is one opaque SSE data frame produced by the engine.
type Chunk struct {
	Text  string
	Final bool
	// FinalText, when Final is true, carries the optional finished text
	// passed to Finish.
	FinalText string
}

// Sink is a broadcast, terminal-sentinel-delimited chunk buffer. Each
// subscriber created via Subscribe receives the full sequence of chunks
// written so far plus everything written afterward, ending with a
// sentinel chunk with Final == true. Writers never block on a slow
// reader: each subscriber owns its own growable backlog guarded by a
// condition variable, not a fixed-capacity channel.
type Sink struct {
	mu          sync.Mutex
	chunks      []Chunk
	finished    bool
	subscribers []*subscriber
}

type subscriber struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Chunk
	closed bool
}

// New creates an empty Sink.
func New() *Sink {
	return &Sink{}
}

// Push appends one chunk and fans it out to every live subscriber.
// Calling Push after Finish is a no-op (the sink is already terminal).
func (s *Sink) Push(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	c := Chunk{Text: text}
	s.chunks = append(s.chunks, c)
	s.fanOut(c, false)
}

// Finish appends the terminal sentinel, optionally carrying final text,
// and fans it out. Idempotent: a second Finish call is a no-op.
func (s *Sink) Finish(finalText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	c := Chunk{Final: true, FinalText: finalText}
	s.chunks = append(s.chunks, c)
	s.fanOut(c, true)
	s.subscribers = nil
}

// fanOut must be called with s.mu held.
func (s *Sink) fanOut(c Chunk, final bool) {
	for _, sub := range s.subscribers {
		sub.push(c, final)
	}
}

func (sub *subscriber) push(c Chunk, final bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.queue = append(sub.queue, c)
	if final {
		sub.closed = true
	}
	sub.cond.Signal()
}

// Next blocks until a chunk is available, returning it and true, or
// returns the zero Chunk and false once the terminal sentinel has
// already been consumed (end-of-stream).
func (sub *subscriber) Next() (Chunk, bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	for len(sub.queue) == 0 {
		if sub.closed {
			return Chunk{}, false
		}
		sub.cond.Wait()
	}
	c := sub.queue[0]
	sub.queue = sub.queue[1:]
	if c.Final {
		sub.closed = true
	}
	return c, true
}

// Reader is what Subscribe returns: a pull-based cursor over the sink.
type Reader interface {
	// Next blocks until the next chunk is available or the stream has
	// ended, in which case it returns false.
	Next() (Chunk, bool)
}

// Subscribe registers a new reader that replays every chunk written so
// far (including the terminal sentinel if the sink has already
// finished) followed by every chunk written subsequently.
func (s *Sink) Subscribe() Reader {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscriber{queue: append([]Chunk(nil), s.chunks...)}
	sub.cond = sync.NewCond(&sub.mu)
	if s.finished {
		// The terminal sentinel is already part of the replayed
		// backlog (s.chunks includes it); Next() will mark the
		// subscriber closed once it drains that sentinel.
		return sub
	}
	s.subscribers = append(s.subscribers, sub)
	return sub
}
