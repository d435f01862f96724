package session

import (
	"sync"
	"time"
)

// Timer counts an exam down one second per tick and fires onExpire once at zero.
type Timer struct {
	clock    Clock
	onTick   func(remaining int)
	onExpire func()

	mu        sync.Mutex
	remaining int
	handle    Handle
	running   bool
	started   bool
	stopped   bool
}

func NewTimer(clock Clock, onTick func(remaining int), onExpire func()) *Timer {
	return &Timer{clock: clock, onTick: onTick, onExpire: onExpire}
}

// Start begins the countdown from seconds. A non-positive value expires immediately.
// It does nothing once the timer has been stopped.
func (t *Timer) Start(seconds int) {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.started = true
	if seconds <= 0 {
		t.remaining = 0
		t.mu.Unlock()
		t.onExpire()
		return
	}
	t.remaining = seconds
	t.running = true
	t.handle = t.clock.ScheduleTick(time.Second, t.tick)
	t.mu.Unlock()
}

// Stop cancels the countdown. Ticks already in flight are ignored.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.running {
		t.running = false
		t.clock.Cancel(t.handle)
	}
}

// Remaining returns the seconds left.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// RearmIfExpired restarts ticking after expiry so the expiry callback fires again
// on the next tick. Used when the submit triggered by expiry failed to save.
func (t *Timer) RearmIfExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started || t.stopped || t.running || t.remaining > 0 {
		return
	}
	t.running = true
	t.handle = t.clock.ScheduleTick(time.Second, t.tick)
}

func (t *Timer) tick() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	if t.remaining > 0 {
		t.remaining--
	}
	remaining := t.remaining
	expired := remaining == 0
	if expired {
		t.running = false
		t.clock.Cancel(t.handle)
	}
	t.mu.Unlock()

	if t.onTick != nil {
		t.onTick(remaining)
	}
	if expired {
		t.onExpire()
	}
}
