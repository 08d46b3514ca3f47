package core

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts wall-clock time and timer scheduling so that debounced
// persistence and expiration sweeps can be driven deterministically from
// tests, per Design Note §9 ("a single scheduler abstraction with
// deterministic 'advance clock' support for tests"). There is no teacher
// precedent for this — the teacher's SQLite store has no debounce timers —
// so it is built fresh in the teacher's general style: a small interface
// plus two implementations, real and manual.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancelable scheduled callback.
type Timer interface {
	Stop() bool
}

// realClock delegates to the standard library.
type realClock struct{}

// RealClock returns the production Clock backed by time.Now/time.AfterFunc.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }

// ManualClock is a test Clock whose time only moves when Advance is called.
// Pending timers fire synchronously, in the calling goroutine, when the
// advanced time reaches or passes their deadline.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*manualTimer
}

type manualTimer struct {
	deadline time.Time
	fn       func()
	stopped  bool
}

func (t *manualTimer) Stop() bool {
	already := t.stopped
	t.stopped = true
	return !already
}

// NewManualClock creates a ManualClock starting at the given time.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{deadline: c.now.Add(d), fn: f}
	c.pending = append(c.pending, t)
	return t
}

// Advance moves the clock forward by d and synchronously fires every timer
// whose deadline has been reached, in deadline order.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	due := make([]*manualTimer, 0, len(c.pending))
	remaining := make([]*manualTimer, 0, len(c.pending))
	for _, t := range c.pending {
		switch {
		case t.stopped:
			// drop
		case !t.deadline.After(now):
			due = append(due, t)
		default:
			remaining = append(remaining, t)
		}
	}
	c.pending = remaining
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		t.fn()
	}
}
