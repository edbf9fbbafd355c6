package agent

import (
	"context"

	"github.com/hyperos-labs/agent-core/internal/domain"
	"github.com/hyperos-labs/agent-core/internal/security"
	"github.com/hyperos-labs/agent-core/pkg/telemetry"
)

// Handle tracks an asynchronously started run. Callers wait on Done and then
// read the outcome; Cancel requests a cooperative stop.
type Handle struct {
	taskID string
	runner *Runner
	done   chan struct{}

	res *domain.Result
	err error
}

// Start begins a run in the background. Admission checks (input validation,
// single-run rule, rate limit) happen synchronously so the caller gets those
// failures immediately instead of through the handle.
func (r *Runner) Start(ctx context.Context, task string) (*Handle, error) {
	validation := security.ValidateTaskInput(task)
	if validation.Blocked {
		return nil, &domain.ValidationBlockedError{Reason: validation.Reason}
	}

	session, err := r.begin(validation.Sanitized)
	if err != nil {
		return nil, err
	}

	// Same ordering as Run: the limiter slot is consumed only once the
	// submission has otherwise been accepted.
	if granted, retryAfter := r.limiter.Allow(); !granted {
		r.finish(session)
		telemetry.RateLimitedTotal.Inc()
		return nil, &domain.RateLimitExceededError{Limit: r.limiter.Limit(), RetryAfter: retryAfter}
	}

	h := &Handle{
		taskID: session.ID,
		runner: r,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		h.res, h.err = r.runAdmitted(ctx, session, validation.Warnings)
	}()
	return h, nil
}

// TaskID returns the identifier assigned to the run.
func (h *Handle) TaskID() string { return h.taskID }

// Done is closed when the run reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result blocks until the run finishes and returns its outcome.
func (h *Handle) Result() (*domain.Result, error) {
	<-h.done
	return h.res, h.err
}

// Cancel requests cooperative cancellation of this run. It returns false once
// the run has already finished.
func (h *Handle) Cancel() bool {
	select {
	case <-h.done:
		return false
	default:
		return h.runner.Cancel()
	}
}
