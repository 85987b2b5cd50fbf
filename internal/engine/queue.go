package engine

import (
	"sync"
	"time"

	"github.com/roach88/ignis/internal/ir"
)

// outcome is what a worker reports back to the coordinator after one
// dispatch. By the time an outcome is enqueued its journal write has
// either committed or failed (Fatal is set).
type outcome struct {
	ActionID string
	Status   ir.Status // StatusSuccess or StatusFailed when Fatal is nil
	Result   ir.Value
	Error    *ir.ActionError
	Attempt  int64
	Fatal    error
	Duration time.Duration
}

// outcomeQueue is a thread-safe FIFO of worker outcomes.
//
// Workers enqueue from their own goroutines; only the coordinator
// dequeues. The queue is unbounded so a worker never blocks on a busy
// coordinator.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the coordinator loop.
type outcomeQueue struct {
	mu       sync.Mutex
	outcomes []outcome
	closed   bool
	signal   chan struct{} // Signals availability (buffered, size 1)
}

func newOutcomeQueue() *outcomeQueue {
	return &outcomeQueue{
		outcomes: make([]outcome, 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds an outcome to the back of the queue.
// Returns false if the queue is closed.
func (q *outcomeQueue) Enqueue(o outcome) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.outcomes = append(q.outcomes, o)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (outcome{}, false) if the queue is empty.
func (q *outcomeQueue) TryDequeue() (outcome, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.outcomes) == 0 {
		return outcome{}, false
	}

	o := q.outcomes[0]
	// Clear the slot so the result value can be collected.
	q.outcomes[0] = outcome{}

	if len(q.outcomes) == 1 {
		q.outcomes = q.outcomes[:0]
	} else {
		q.outcomes = q.outcomes[1:]
	}

	return o, true
}

// Wait returns a channel that signals when outcomes may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *outcomeQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *outcomeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.outcomes)
}

// Close signals that no more outcomes will be enqueued and wakes waiters.
func (q *outcomeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
