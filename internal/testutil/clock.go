// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"sync"
	"time"
)

// FixedClock is a settable clock for tests. It implements period.Clock.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock stopped at now.
func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

// Now returns the current fixed instant.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// instantLayout is the compact form accepted by Instant.
const instantLayout = "2006-01-02 15:04"

// Instant parses "YYYY-MM-DD HH:MM" in UTC. It panics on malformed input,
// so use it only with literals.
//
//	testutil.Instant("2026-10-19 09:30") // a Monday
func Instant(s string) time.Time {
	t, err := time.ParseInLocation(instantLayout, s, time.UTC)
	if err != nil {
		panic("testutil.Instant: " + err.Error())
	}
	return t
}
