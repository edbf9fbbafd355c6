// Package breaker implements the circuit breaker pattern: fail fast when a
// dependency is unhealthy instead of hammering it with doomed calls.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker's position in its lifecycle.
type State string

const (
	// StateClosed passes calls through, counting consecutive failures.
	StateClosed State = "closed"
	// StateOpen rejects calls immediately without invoking the dependency.
	StateOpen State = "open"
	// StateHalfOpen lets calls through to probe whether the dependency
	// recovered.
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned by Allow when the breaker is open. Callers
// detect it with errors.Is and must not retry.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures while closed
	// before the circuit opens. Zero means 5.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before the next
	// call is allowed through in half-open. Zero means 60s.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the number of consecutive half-open successes
	// needed to close the circuit. Zero means 2.
	SuccessThreshold int
	// OnStateChange is called after every transition, outside the breaker's
	// lock. Observability only.
	OnStateChange func(from, to State)
}

// Breaker guards calls to one external dependency. One instance per
// dependency; never share a breaker across unrelated services.
type Breaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	failures    int
	successes   int // meaningful only in half-open
	lastFailure time.Time
	changedAt   time.Time
}

// New creates a closed Breaker with the given thresholds.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	return &Breaker{cfg: cfg, state: StateClosed, changedAt: time.Now()}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. It is a cheap state read: when
// the circuit is open and the recovery timeout has elapsed since the last
// failure, the breaker moves to half-open and the call is let through.
// Returns ErrCircuitOpen otherwise. Allow and the outcome recording are
// separate critical sections, so concurrent callers never block behind each
// other's in-flight calls.
func (b *Breaker) Allow() error {
	b.mu.Lock()

	if b.state == StateOpen {
		if time.Since(b.lastFailure) < b.cfg.RecoveryTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
		b.mu.Unlock()
		b.notify(StateOpen, StateHalfOpen)
		return nil
	}

	b.mu.Unlock()
	return nil
}

// RecordSuccess notes a successful call. While closed it clears the failure
// count so failures do not accumulate across isolated incidents; in
// half-open it counts toward closing the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()

	closed := false
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.failures = 0
			b.transition(StateClosed)
			closed = true
		}
	case StateClosed:
		b.failures = 0
	}

	b.mu.Unlock()
	if closed {
		b.notify(StateHalfOpen, StateClosed)
	}
}

// RecordFailure notes a failed call. Reaching the failure threshold while
// closed opens the circuit; any failure in half-open reopens it immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()

	b.failures++
	b.lastFailure = time.Now()

	var from State
	opened := false
	switch b.state {
	case StateHalfOpen:
		from = StateHalfOpen
		b.transition(StateOpen)
		opened = true
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			from = StateClosed
			b.transition(StateOpen)
			opened = true
		}
	}

	b.mu.Unlock()
	if opened {
		b.notify(from, StateOpen)
	}
}

// Do runs fn through the breaker: Allow, then RecordSuccess/RecordFailure
// based on fn's error.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Reset forces the breaker back to closed with cleared counters. Intended
// for lifecycle management and tests.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.failures = 0
	b.successes = 0
	b.lastFailure = time.Time{}
	changed := from != StateClosed
	if changed {
		b.transition(StateClosed)
	}
	b.mu.Unlock()
	if changed {
		b.notify(from, StateClosed)
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	b.state = to
	b.changedAt = time.Now()
	if to == StateHalfOpen {
		b.successes = 0
	}
}

func (b *Breaker) notify(from, to State) {
	if cb := b.cfg.OnStateChange; cb != nil {
		cb(from, to)
	}
}
