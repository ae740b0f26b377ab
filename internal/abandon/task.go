package abandon

import (
	"sync"
	"time"
)

// Timer is a single-slot cancellable delayed action. Arming always
// cancels the previous pending action before scheduling the new one,
// so at most one action is ever pending; actions never stack.
type Timer struct {
	mu      sync.Mutex
	pending *time.Timer
}

// NewTimer returns an unarmed timer
func NewTimer() *Timer {
	return &Timer{}
}

// Arm schedules fn after delay, cancelling any pending action first
func (t *Timer) Arm(delay time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != nil {
		t.pending.Stop()
	}
	var armed *time.Timer
	armed = time.AfterFunc(delay, func() {
		t.mu.Lock()
		// a newer arm or a cancel superseded this action
		if t.pending != armed {
			t.mu.Unlock()
			return
		}
		t.pending = nil
		t.mu.Unlock()
		fn()
	})
	t.pending = armed
}

// Cancel drops the pending action, if any. Idempotent.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

// Pending reports whether an action is currently scheduled
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}
