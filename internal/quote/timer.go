// Package quote keeps a session's displayed quote current: debounced fetch
// on intent changes, periodic refresh while an amount is entered, and
// last-writer-wins dropping of superseded responses.
package quote

import (
	"sync"
	"time"
)

// DebounceTimer is a restartable single-fire timer. Start replaces any
// pending fire with a new one; Stop cancels the pending fire. A callback
// that loses the race with a later Start or Stop never runs.
type DebounceTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// Start schedules fn to run after d, cancelling any pending fire.
func (t *DebounceTimer) Start(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, func() {
		// AfterFunc may fire concurrently with Stop; the generation check
		// makes a cancelled fire a no-op.
		t.mu.Lock()
		superseded := t.gen != gen
		t.mu.Unlock()
		if superseded {
			return
		}
		fn()
	})
}

// Stop cancels any pending fire. Safe to call on a timer that never started.
func (t *DebounceTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
