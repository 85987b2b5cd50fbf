package engine

import "sync/atomic"

// Clock is the monotonic logical clock that stamps journal writes.
//
// Every journal entry and run record gets a strictly increasing seq from
// this clock. The engine seeds it from the journal's MaxSeq so seq keeps
// increasing across runs of the same deployment. Wall-clock time is never
// used for ordering.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used to resume after the highest seq already in the journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
