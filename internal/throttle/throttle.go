// Package throttle suppresses repeats of the same error within a window.
package throttle

import (
	"sync"
	"time"
)

// Throttle remembers when each key was last allowed through.
type Throttle struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// New creates a Throttle. A nil clock uses time.Now.
func New(window time.Duration, clock func() time.Time) *Throttle {
	if clock == nil {
		clock = time.Now
	}
	return &Throttle{window: window, now: clock, last: make(map[string]time.Time)}
}

// Allow reports whether key should be surfaced now. It returns true the
// first time a key is seen and again once window has elapsed.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if prev, ok := t.last[key]; ok && now.Sub(prev) < t.window {
		return false
	}
	t.last[key] = now
	return true
}

// Reset forgets every key.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.last)
}
