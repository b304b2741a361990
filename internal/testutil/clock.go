package testutil

import "sync"

// DeterministicClock is the logical clock used by scenario runs and engine
// tests. Every instance starts at 0 and its first Next returns 1, so two
// runs of the same scenario stamp identical seqs into their traces.
//
// Rewind puts the clock back to 0 so one fake can serve repeated runs.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock returns a clock at 0.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock by one.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last seq handed out.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Rewind sets the clock back to 0.
func (c *DeterministicClock) Rewind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
