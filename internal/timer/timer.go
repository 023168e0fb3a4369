package timer

import (
	"sync"
	"time"
)

// Timer calls fn once per armed interval unless cancelled or reset first.
type Timer struct {
	mu sync.Mutex

	fn       func()
	t        *time.Timer
	gen      uint64
	interval time.Duration
	deadline time.Time
}

// New returns a stopped timer that will call fn on expiry.
func New(fn func()) *Timer {
	return &Timer{fn: fn}
}

// Arm starts the timer unless it is already running. Reports whether it was started.
func (t *Timer) Arm(d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t != nil {
		return false
	}
	t.startLocked(d)
	return true
}

// Reset restarts the timer with a full interval d, whether or not it was running.
func (t *Timer) Reset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.startLocked(d)
}

// Cancel stops the timer. Reports whether a running timer was stopped.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t == nil {
		return false
	}
	t.stopLocked()
	return true
}

// Active reports whether the timer is running.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.t != nil
}

// Interval returns the interval of the current or last run.
func (t *Timer) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Remaining returns the time until expiry, or zero when stopped.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t == nil {
		return 0
	}
	remaining := time.Until(t.deadline)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (t *Timer) startLocked(d time.Duration) {
	t.gen++
	gen := t.gen
	t.interval = d
	t.deadline = time.Now().Add(d)
	t.t = time.AfterFunc(d, func() { t.fire(gen) })
}

func (t *Timer) stopLocked() {
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
	t.gen++
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.t == nil {
		t.mu.Unlock()
		return
	}
	t.t = nil
	t.mu.Unlock()

	// fn may re-arm the timer, so it runs without the lock.
	t.fn()
}
