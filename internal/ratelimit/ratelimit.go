// Package ratelimit caps how many triggered replies a single user can get.
//
// Counts live for the whole process and are never reset or persisted.
package ratelimit

import "sync"

// DefaultLimit is the per-user reply quota.
const DefaultLimit = 5

// Stats is a point-in-time view of the counter.
type Stats struct {
	Limit     int
	Tracked   int // users with at least one recorded trigger
	Exhausted int // users at or above Limit
}

// Counter is a per-user trigger counter. Safe for concurrent use.
type Counter struct {
	limit int

	mu     sync.Mutex
	counts map[string]int
}

// New returns a Counter; limit <= 0 selects DefaultLimit.
func New(limit int) *Counter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Counter{limit: limit, counts: map[string]int{}}
}

func (c *Counter) Limit() int { return c.limit }

// Allow reports whether userID is still under the quota.
func (c *Counter) Allow(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[userID] < c.limit
}

// RecordTrigger counts one reply for userID.
func (c *Counter) RecordTrigger(userID string) {
	c.mu.Lock()
	c.counts[userID]++
	c.mu.Unlock()
}

// TryAcquire checks the quota and consumes one slot in a single step.
// Two concurrent callers can never both take the last slot.
func (c *Counter) TryAcquire(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[userID] >= c.limit {
		return false
	}
	c.counts[userID]++
	return true
}

// Count returns the recorded triggers for userID (0 if unknown).
func (c *Counter) Count(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[userID]
}

func (c *Counter) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{Limit: c.limit, Tracked: len(c.counts)}
	for _, n := range c.counts {
		if n >= c.limit {
			st.Exhausted++
		}
	}
	return st
}
