// Package ratelimit provides a per-identity sliding-window operation
// counter. Check-and-record is a single atomic step: a burst of concurrent
// calls for the same identity cannot each observe room available before any
// of them records.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks operation timestamps per identity. A single instance is
// constructed at startup and handed to all consumers; there is no package
// level state.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// NewWithClock creates a limiter with an injected clock, for tests.
func NewWithClock(now func() time.Time) *Limiter {
	l := New()
	l.now = now
	return l
}

// Allow prunes entries older than window, and if fewer than maxOps remain,
// records the operation and returns true. Otherwise returns false without
// recording: a denied call does not extend the caller's lockout.
func (l *Limiter) Allow(identity string, maxOps int, window time.Duration) bool {
	if maxOps <= 0 {
		return false
	}

	now := l.now()
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	ops := l.windows[identity]

	// Timestamps are appended in order, so pruning is a prefix drop.
	start := 0
	for start < len(ops) && !ops[start].After(cutoff) {
		start++
	}
	ops = ops[start:]

	if len(ops) >= maxOps {
		l.windows[identity] = ops
		return false
	}

	l.windows[identity] = append(ops, now)
	return true
}

// Remaining reports how many operations the identity has left in the
// current window without recording anything.
func (l *Limiter) Remaining(identity string, maxOps int, window time.Duration) int {
	now := l.now()
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	used := 0
	for _, ts := range l.windows[identity] {
		if ts.After(cutoff) {
			used++
		}
	}
	if used >= maxOps {
		return 0
	}
	return maxOps - used
}

// Reset forgets all recorded operations for identity.
func (l *Limiter) Reset(identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, identity)
}
