// Package testutil holds shared helpers for deterministic tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe settable wall clock for tests.
//
// Components that stamp times take a `now func() time.Time`; tests hand
// them clock.Now and move time explicitly. Identical advances produce
// identical timestamps, so time-dependent assertions never race the real
// clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current clock time. Safe for concurrent use.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set jumps the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
