// Package ratelimit provides sliding-window admission control for task
// submission. State is process-local: the agent supervises one desktop, so
// the window lives in memory behind a mutex rather than in a shared store.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter allows or denies task admission using a sliding-window count.
type Limiter struct {
	limit  int
	window time.Duration

	mu     sync.Mutex
	events []time.Time // admission timestamps, oldest first
	now    func() time.Time
}

// New returns a sliding-window Limiter admitting at most limit events per
// window.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Limit returns the configured maximum events per window.
func (l *Limiter) Limit() int { return l.limit }

// Allow returns whether the request is admitted. When denied, retryAfter is
// the number of whole seconds until the oldest retained event leaves the
// window; it is always positive on denial.
func (l *Limiter) Allow() (granted bool, retryAfter int) {
	now := l.now()
	windowStart := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(windowStart)

	if len(l.events) >= l.limit {
		oldest := l.events[0]
		wait := int(oldest.Add(l.window).Sub(now).Seconds()) + 1
		return false, wait
	}

	l.events = append(l.events, now)
	return true, 0
}

// Remaining returns how many admissions are left in the current window.
func (l *Limiter) Remaining() int {
	windowStart := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(windowStart)
	if n := l.limit - len(l.events); n > 0 {
		return n
	}
	return 0
}

// Reset drops all recorded admissions. Intended for tests and lifecycle
// management.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.events = l.events[:0]
	l.mu.Unlock()
}

// evict drops timestamps that fell outside the window. Caller holds l.mu.
func (l *Limiter) evict(windowStart time.Time) {
	i := 0
	for i < len(l.events) && l.events[i].Before(windowStart) {
		i++
	}
	if i > 0 {
		l.events = append(l.events[:0], l.events[i:]...)
	}
}
