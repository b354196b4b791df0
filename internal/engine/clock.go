package engine

import "sync/atomic"

// Clock is a monotonic logical clock stamping diagnostics events.
//
// Lifecycle events are ordered by logical sequence, never by wall-clock
// time, so traces compare identically across runs regardless of scheduler
// timing.
//
// Thread-safety: safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0; the first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
