package ledger

import "sync/atomic"

// Clock is a monotonic logical clock for event ordering.
//
// Events are stamped with a strictly increasing seq from this clock, never
// wall time. Seqs consumed by a rolled-back transaction are not reused, so
// the sequence is increasing but not dense.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock whose next value is start+1.
// Open resumes from the highest persisted seq.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
