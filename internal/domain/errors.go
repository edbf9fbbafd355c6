package domain

import "fmt"

// OracleErrorKind classifies why a decision-oracle call failed. The fallback
// policy keys off this enumeration, never off error text.
type OracleErrorKind string

const (
	OracleTransient       OracleErrorKind = "transient"
	OracleRateLimited     OracleErrorKind = "rate_limited"
	OracleUnavailable     OracleErrorKind = "unavailable"
	OracleAuth            OracleErrorKind = "auth"
	OracleInvalidResponse OracleErrorKind = "invalid_response"
	OracleUnknown         OracleErrorKind = "unknown"
)

// OracleError is a classified failure from the decision oracle. The adapter
// that talks to the real service assigns the Kind at the boundary.
type OracleError struct {
	Kind OracleErrorKind
	Err  error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle error (%s): %v", e.Kind, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying locally.
// Rate-limit, auth, and unavailable errors are handled by the fallback
// policy instead.
func (e *OracleError) Retryable() bool {
	return e.Kind == OracleTransient || e.Kind == OracleInvalidResponse
}

// AlreadyRunningError is returned when a run is requested while another
// session is active. The request is rejected, never queued.
type AlreadyRunningError struct {
	TaskID string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("another task is already running: %s", e.TaskID)
}

// RateLimitExceededError is returned when task admission is denied.
type RateLimitExceededError struct {
	Limit      int
	RetryAfter int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded (limit %d): retry in %d seconds", e.Limit, e.RetryAfter)
}

// CheckpointNotFoundError is returned when a checkpoint ID or task has no
// persisted checkpoint.
type CheckpointNotFoundError struct {
	ID string
}

func (e *CheckpointNotFoundError) Error() string {
	return fmt.Sprintf("checkpoint not found: %s", e.ID)
}

// ValidationBlockedError is returned when input or a proposed action is
// rejected at blocking severity.
type ValidationBlockedError struct {
	Reason string
}

func (e *ValidationBlockedError) Error() string {
	return fmt.Sprintf("blocked by validation: %s", e.Reason)
}
