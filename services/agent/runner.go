// Package agent implements the supervised control loop that drives a task
// to completion: capture the environment, consult the decision oracle
// through retry and circuit-breaker layers, vet the proposed action, persist
// a checkpoint, execute, and record the step in the audit trail.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hyperos-labs/agent-core/internal/checkpoint"
	"github.com/hyperos-labs/agent-core/internal/domain"
	"github.com/hyperos-labs/agent-core/internal/policy"
	"github.com/hyperos-labs/agent-core/internal/ratelimit"
	"github.com/hyperos-labs/agent-core/internal/security"
	"github.com/hyperos-labs/agent-core/pkg/breaker"
	"github.com/hyperos-labs/agent-core/pkg/retry"
	"github.com/hyperos-labs/agent-core/pkg/telemetry"
)

const (
	defaultMaxSteps   = 20
	defaultStepDelay  = time.Second
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
	// maxWaitSeconds caps wait actions regardless of what the oracle
	// requests.
	maxWaitSeconds = 10
)

// Runner is the top-level task state machine. Exactly one run may be active
// at a time; a second submission is rejected, not queued.
type Runner struct {
	capture     Capture
	oracle      Oracle
	executor    Executor
	checkpoints checkpoint.Store
	audit       *security.AuditLog
	limiter     *ratelimit.Limiter
	breaker     *breaker.Breaker

	guard      *security.CoordinateGuard
	maxSteps   int
	stepDelay  time.Duration
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger

	mu              sync.Mutex
	session         *domain.Session // nil while idle
	cancelRequested bool
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(l *slog.Logger) Option     { return func(r *Runner) { r.logger = l } }
func WithMaxSteps(n int) Option            { return func(r *Runner) { r.maxSteps = n } }
func WithStepDelay(d time.Duration) Option { return func(r *Runner) { r.stepDelay = d } }
func WithRetries(n int) Option             { return func(r *Runner) { r.maxRetries = n } }
func WithBaseDelay(d time.Duration) Option { return func(r *Runner) { r.baseDelay = d } }
func WithCoordinateGuard(g *security.CoordinateGuard) Option {
	return func(r *Runner) { r.guard = g }
}

// NewRunner constructs a Runner with the given collaborators and options.
func NewRunner(
	capture Capture,
	oracle Oracle,
	executor Executor,
	checkpoints checkpoint.Store,
	audit *security.AuditLog,
	limiter *ratelimit.Limiter,
	brk *breaker.Breaker,
	opts ...Option,
) *Runner {
	r := &Runner{
		capture:     capture,
		oracle:      oracle,
		executor:    executor,
		checkpoints: checkpoints,
		audit:       audit,
		limiter:     limiter,
		breaker:     brk,
		guard:       security.NewCoordinateGuard(1920, 1080),
		maxSteps:    defaultMaxSteps,
		stepDelay:   defaultStepDelay,
		maxRetries:  defaultMaxRetries,
		baseDelay:   defaultBaseDelay,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Status returns the current run status and the active task description.
// It reads a shared snapshot and never blocks behind the loop.
func (r *Runner) Status() (domain.Status, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return domain.StatusIdle, ""
	}
	return r.session.Status, r.session.Description
}

// Cancel requests cooperative cancellation of the active run. It returns
// false when nothing is running. The flag is honored at the next step
// boundary; in-flight external calls are not interrupted.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return false
	}
	r.cancelRequested = true
	return true
}

// Run executes the full control loop for one task and blocks until it
// reaches a terminal state. The returned Result always carries the complete
// step history.
func (r *Runner) Run(ctx context.Context, task string) (*domain.Result, error) {
	validation := security.ValidateTaskInput(task)
	if validation.Blocked {
		return nil, &domain.ValidationBlockedError{Reason: validation.Reason}
	}

	session, err := r.begin(validation.Sanitized)
	if err != nil {
		return nil, err
	}

	// The limiter slot is consumed last so blocked input and concurrent
	// submissions do not eat into the admission budget.
	if granted, retryAfter := r.limiter.Allow(); !granted {
		r.finish(session)
		telemetry.RateLimitedTotal.Inc()
		return nil, &domain.RateLimitExceededError{Limit: r.limiter.Limit(), RetryAfter: retryAfter}
	}

	return r.runAdmitted(ctx, session, validation.Warnings)
}

// runAdmitted drives an already-admitted session to a terminal state. It owns
// the session teardown.
func (r *Runner) runAdmitted(ctx context.Context, session *domain.Session, warnings []string) (*domain.Result, error) {
	log := r.logger.With(
		slog.String("task_id", session.ID),
		slog.String("task", session.Description),
	)
	for _, w := range warnings {
		log.Warn("task input flagged", slog.String("warning", w))
	}
	log.Info("task starting", slog.Int("max_steps", r.maxSteps))

	result := r.loop(ctx, session, log)

	r.finish(session)
	telemetry.RunnerTasksTotal.WithLabelValues(string(result.Status)).Inc()
	log.Info("task finished",
		slog.String("status", string(result.Status)),
		slog.Int("steps", result.StepsCompleted),
	)
	return result, nil
}

// begin transitions Idle → Running, rejecting the request when another
// session is active.
func (r *Runner) begin(task string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return nil, &domain.AlreadyRunningError{TaskID: r.session.ID}
	}

	r.session = &domain.Session{
		ID:          uuid.New().String(),
		Description: task,
		Status:      domain.StatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	r.cancelRequested = false
	return r.session, nil
}

// finish destroys the session, returning the runner to Idle.
func (r *Runner) finish(_ *domain.Session) {
	r.mu.Lock()
	r.session = nil
	r.cancelRequested = false
	r.mu.Unlock()
}

// loop drives the Analyze→Decide→Execute→Checkpoint cycle. Any panic from
// outside the defined failure paths terminates the run as Failed with the
// history preserved.
func (r *Runner) loop(ctx context.Context, session *domain.Session, log *slog.Logger) (result *domain.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("unexpected panic during task execution", slog.Any("panic", rec))
			result = r.terminal(session, domain.StatusFailed, fmt.Sprintf("unexpected error: %v", rec))
		}
	}()

	// oracleFailures counts exhausted oracle calls across the run; the
	// fallback policy stops granting short-wait retries once it reaches the
	// retry budget.
	oracleFailures := 0

	for step := 1; step <= r.maxSteps; step++ {
		if r.cancelled() {
			log.Info("task cancelled by user", slog.Int("step", step))
			return r.terminal(session, domain.StatusCancelled, "task was cancelled")
		}

		outcome, reason := r.runStep(ctx, session, step, &oracleFailures, log)
		switch outcome {
		case stepDone:
			return r.terminal(session, domain.StatusSucceeded, reason)
		case stepFailed:
			return r.terminal(session, domain.StatusFailed, reason)
		}

		if err := r.sleep(ctx, r.stepDelay); err != nil {
			log.Info("task cancelled via context", slog.Int("step", step))
			return r.terminal(session, domain.StatusCancelled, "task was cancelled")
		}
	}

	log.Warn("maximum steps reached without completion")
	return r.terminal(session, domain.StatusTimedOut,
		fmt.Sprintf("task did not complete within %d steps", r.maxSteps))
}

// stepOutcome tells the loop how one cycle ended.
type stepOutcome int

const (
	stepContinue stepOutcome = iota
	stepDone
	stepFailed
)

// runStep executes one cycle. stepDone carries the completion reason,
// stepFailed a terminal error message; stepContinue hands control back to
// the loop for the next cycle.
func (r *Runner) runStep(ctx context.Context, session *domain.Session, step int, oracleFailures *int, log *slog.Logger) (stepOutcome, string) {
	ctx, span := otel.Tracer("agent").Start(ctx, "runner.step")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", session.ID),
		attribute.Int("task.step", step),
	)

	start := time.Now()
	defer func() {
		telemetry.RunnerStepDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	snap, err := r.captureWithRetry(ctx)
	if err != nil {
		// Without a screen snapshot there is nothing to show the oracle,
		// and the retry budget is already spent. Fail the run rather than
		// burning the remaining steps blind.
		log.Error("environment capture failed", slog.Int("step", step), slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "capture failed")
		return stepFailed, err.Error()
	}

	decision, derr := r.decide(ctx, session, snap)
	if derr != nil {
		span.RecordError(derr)
		span.SetStatus(codes.Error, "oracle call failed")
		telemetry.RunnerFallbacksTotal.Inc()
		decision = policy.Fallback(derr, *oracleFailures, r.maxRetries)
		*oracleFailures++
		log.Warn("using fallback decision",
			slog.Int("step", step),
			slog.String("error", derr.Error()),
			slog.String("action", string(decision.Action.Kind())),
		)
	} else {
		*oracleFailures = 0
	}

	if security.ContainsSensitive(decision.Rationale) {
		log.Warn("sensitive data detected in oracle rationale", slog.Int("step", step))
	}

	action := clampWait(decision.Action)
	telemetry.RunnerStepsTotal.WithLabelValues(string(action.Kind())).Inc()

	if decision.Done || action.Kind() == domain.ActionDone {
		reason := action.Params()["reason"]
		msg, _ := reason.(string)
		if msg == "" {
			msg = "task completed"
		}
		rec := domain.StepRecord{
			Step:      step,
			Rationale: decision.Rationale,
			Action:    domain.ActionDone,
			Params:    action.Params(),
			Result:    &domain.ExecResult{Success: true, Message: msg},
			Timestamp: time.Now().UTC(),
		}
		r.append(session, rec)
		_ = r.auditStep(session, rec)
		return stepDone, msg
	}

	rec := domain.StepRecord{
		Step:      step,
		Rationale: decision.Rationale,
		Action:    action.Kind(),
		Params:    action.Params(),
		Timestamp: time.Now().UTC(),
	}

	if ok, warning := r.guard.CheckAction(action); !ok {
		// Blocking severity: fail the step without invoking the executor.
		// The oracle sees the failure in history and can adapt next cycle.
		telemetry.RunnerBlockedActionsTotal.Inc()
		log.Warn("action blocked by safety validator",
			slog.Int("step", step),
			slog.String("reason", warning),
		)
		rec.Result = &domain.ExecResult{Success: false, Message: "action blocked", Error: warning}
		r.append(session, rec)
		_ = r.auditStep(session, rec)
		return stepContinue, ""
	} else if warning != "" {
		log.Warn("action near sensitive zone", slog.Int("step", step), slog.String("warning", warning))
	}

	// Checkpoint BEFORE the action executes so a crash between decision and
	// execution is recoverable.
	r.saveCheckpoint(ctx, session, step, action, log)

	res := r.executor.Perform(ctx, action)
	rec.Result = &res
	if !res.Success {
		// Keep going; the oracle may recover on the next cycle.
		log.Warn("action failed",
			slog.Int("step", step),
			slog.String("action", string(action.Kind())),
			slog.String("error", res.Error),
		)
	}

	r.append(session, rec)
	if err := r.auditStep(session, rec); err != nil {
		log.Error("audit append failed", slog.String("error", err.Error()))
	}
	return stepContinue, ""
}

// decide calls the oracle through the retry executor composed around the
// circuit breaker. Exhausted retries or an open circuit surface as an error
// for the fallback policy.
func (r *Runner) decide(ctx context.Context, session *domain.Session, snap Snapshot) (domain.Decision, error) {
	var decision domain.Decision

	history := r.historySnapshot()

	err := retry.Do(ctx, retry.Config{
		MaxRetries: r.maxRetries,
		BaseDelay:  r.baseDelay,
		Retryable: func(err error) bool {
			var oerr *domain.OracleError
			if errors.As(err, &oerr) {
				return oerr.Retryable()
			}
			return false
		},
		OnRetry: func(attempt int, err error) {
			telemetry.OracleRetriesTotal.Inc()
			r.logger.Warn("oracle attempt failed, retrying",
				slog.String("task_id", session.ID),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		},
	}, func() error {
		if err := r.breaker.Allow(); err != nil {
			telemetry.OracleCircuitRejectionsTotal.Inc()
			return err
		}
		d, err := r.oracle.Decide(ctx, session.Description, snap, history)
		if err != nil {
			r.breaker.RecordFailure()
			return err
		}
		r.breaker.RecordSuccess()
		decision = d
		return nil
	})
	if err != nil {
		return domain.Decision{}, err
	}
	if decision.Action == nil {
		return domain.Decision{}, &domain.OracleError{
			Kind: domain.OracleInvalidResponse,
			Err:  fmt.Errorf("oracle returned no action"),
		}
	}
	return decision, nil
}

func (r *Runner) captureWithRetry(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := retry.Do(ctx, retry.Config{
		MaxRetries: r.maxRetries,
		BaseDelay:  r.baseDelay,
	}, func() error {
		var err error
		snap, err = r.capture.Capture(ctx)
		return err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("capture environment: %w", err)
	}
	return snap, nil
}

func (r *Runner) saveCheckpoint(ctx context.Context, session *domain.Session, step int, action domain.Action, log *slog.Logger) {
	history := r.historySnapshot()
	id, err := r.checkpoints.Save(ctx, session.ID, step, session.Description, history,
		map[string]any{"action": string(action.Kind())})
	if err != nil {
		// Checkpoint failures are logged but never fatal to the loop.
		log.Warn("failed to save checkpoint", slog.Int("step", step), slog.String("error", err.Error()))
		return
	}
	telemetry.CheckpointsSavedTotal.Inc()
	log.Debug("checkpoint saved", slog.String("checkpoint_id", id))
}

func (r *Runner) auditStep(session *domain.Session, rec domain.StepRecord) error {
	summary := ""
	if rec.Result != nil {
		summary = rec.Result.Message
		if rec.Result.Error != "" {
			summary = rec.Result.Error
		}
	}
	return r.audit.Append(session.ID, rec.Action, rec.Params, session.Description, summary)
}

func (r *Runner) append(session *domain.Session, rec domain.StepRecord) {
	r.mu.Lock()
	session.History = append(session.History, rec)
	r.mu.Unlock()
}

// historySnapshot deep-copies the live history for hand-off to collaborators
// and the checkpoint store.
func (r *Runner) historySnapshot() []domain.StepRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil
	}
	return domain.CopyHistory(r.session.History)
}

func (r *Runner) cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelRequested
}

func (r *Runner) terminal(session *domain.Session, status domain.Status, message string) *domain.Result {
	r.mu.Lock()
	session.Status = status
	history := domain.CopyHistory(session.History)
	r.mu.Unlock()

	return &domain.Result{
		TaskID:         session.ID,
		Status:         status,
		Message:        message,
		History:        history,
		StepsCompleted: len(history),
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// clampWait enforces the configuration ceiling on wait actions no matter
// what the oracle requested.
func clampWait(a domain.Action) domain.Action {
	if w, ok := a.(domain.WaitAction); ok && w.Seconds > maxWaitSeconds {
		return domain.WaitAction{Seconds: maxWaitSeconds}
	}
	return a
}
