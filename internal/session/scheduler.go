package session

import (
	"sync"
	"time"
)

// task is a single cancelable timeout. The callback runs on the timer
// goroutine without any controller lock held, so it must take whatever
// locks it needs itself.
type task struct {
	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time
	done     bool
}

// schedule arranges for fn to run after d unless the task is canceled first.
func schedule(d time.Duration, fn func()) *task {
	t := &task{deadline: time.Now().Add(d)}
	t.timer = time.AfterFunc(d, func() {
		t.markDone()
		fn()
	})
	return t
}

func (t *task) markDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
}

// cancel stops the timer. Safe to call more than once and after the
// callback has already fired.
func (t *task) cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return
	}
	t.done = true
	t.timer.Stop()
}

// remaining reports the time left until the deadline, clamped at zero.
func (t *task) remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return 0
	}
	rem := time.Until(t.deadline)
	if rem < 0 {
		return 0
	}
	return rem
}
