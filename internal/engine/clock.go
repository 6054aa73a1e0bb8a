package engine

import (
	"sync/atomic"
	"time"
)

// SeqClock is a monotonic logical clock. Every trace-worthy event
// (mutation, effect change, transition edge) is stamped with a strictly
// increasing seq so traces order identically on replay, with no wall-clock
// races.
//
// Thread-safety: atomic; safe from any goroutine.
type SeqClock struct {
	seq atomic.Int64
}

// NewSeqClock creates a clock starting at 0; the first Next returns 1.
func NewSeqClock() *SeqClock {
	return &SeqClock{}
}

// NewSeqClockAt creates a clock resuming from a specific sequence number.
// Used by replay to continue a recorded trace.
func NewSeqClockAt(start int64) *SeqClock {
	c := &SeqClock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *SeqClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the latest issued sequence number without advancing.
func (c *SeqClock) Current() int64 {
	return c.seq.Load()
}

// FrameClock is the external frame-driver's notion of elapsed time. The
// Scheduler never blocks on it; it only samples Now to compute how far a
// running transition has progressed when a newer change supersedes it.
type FrameClock interface {
	Now() time.Duration
}

// wallClock measures elapsed wall time since construction.
type wallClock struct {
	start time.Time
}

// NewWallClock returns a FrameClock backed by wall time.
func NewWallClock() FrameClock {
	return wallClock{start: time.Now()}
}

func (c wallClock) Now() time.Duration {
	return time.Since(c.start)
}
