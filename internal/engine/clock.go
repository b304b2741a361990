package engine

import "sync/atomic"

// Clock hands out the seq stamped on every snapshot. Seqs only grow, so
// reading a journal by seq applies reducers in the order they first ran.
//
// Only the Run loop calls Next; Current may be read from anywhere.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first seq is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock whose first seq is after+1. A session appended
// to an existing journal starts after the journal's last seq.
func NewClockAt(after int64) *Clock {
	c := &Clock{}
	c.last.Store(after)
	return c
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Current returns the last seq handed out, or the starting point.
func (c *Clock) Current() int64 {
	return c.last.Load()
}
