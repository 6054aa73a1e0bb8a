// Package testutil provides deterministic stand-ins for the engine's
// clocks and token generator so scenarios replay byte-identically.
package testutil

import (
	"sync"
	"time"
)

// ManualFrameClock is a FrameClock that only moves when told to. Tests
// advance it between scheduler calls to simulate animation progress.
//
// Thread-safety: all methods take the internal mutex.
type ManualFrameClock struct {
	mu  sync.Mutex
	now time.Duration
}

// NewManualFrameClock creates a frame clock at instant zero.
func NewManualFrameClock() *ManualFrameClock {
	return &ManualFrameClock{}
}

// Now returns the current instant.
func (c *ManualFrameClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualFrameClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Set moves the clock to an absolute instant.
func (c *ManualFrameClock) Set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = d
}
