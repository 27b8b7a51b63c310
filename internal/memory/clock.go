package memory

import "sync/atomic"

// Clock is a monotonic logical counter.
//
// Working memory uses one clock to issue fact handles and another to stamp
// change events. Values start at 1, so the zero handle is never issued and
// replaying the same operations always yields the same numbers.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
// Used to resume numbering after reloading a journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next value and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued value without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
