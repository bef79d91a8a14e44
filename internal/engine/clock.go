package engine

import "sync/atomic"

// Clock is the monotonic logical clock stamping trace entries.
//
// Every trace entry gets a strictly increasing seq from Next, so two runs
// of the same definition produce identical traces regardless of wall
// time. Bus.Reset rewinds the clock with it.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Rewind sets the clock back to 0.
func (c *Clock) Rewind() {
	c.seq.Store(0)
}
