// Package presence tracks when the operator was last active.
//
// The tracker is a single process-wide timestamp. Every operator update
// touches it, last writer wins, and "online" means the last touch lies
// within the configured window. It is advisory only: a user may be told the
// operator is offline while the operator is in fact reading.
package presence

import (
	"sync"
	"time"

	"github.com/Noha9900/advance-filestorebot/internal/clock"
)

// Tracker records operator activity.
type Tracker struct {
	mu       sync.RWMutex
	clock    clock.Clock
	window   time.Duration
	lastSeen time.Time
}

// NewTracker returns a Tracker that considers the operator online for window
// after each Touch.
func NewTracker(c clock.Clock, window time.Duration) *Tracker {
	if c == nil {
		c = clock.Real()
	}
	return &Tracker{clock: c, window: window}
}

// Touch records operator activity now.
func (t *Tracker) Touch() {
	now := t.clock.Now()
	t.mu.Lock()
	if now.After(t.lastSeen) {
		t.lastSeen = now
	}
	t.mu.Unlock()
}

// LastSeen returns the time of the last Touch, zero if never touched.
func (t *Tracker) LastSeen() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSeen
}

// Online reports whether the operator was active within the window.
func (t *Tracker) Online() bool {
	last := t.LastSeen()
	if last.IsZero() {
		return false
	}
	return t.clock.Now().Sub(last) <= t.window
}
