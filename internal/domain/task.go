package domain

import "time"

// Status represents the states a task session can be in.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusCancelled Status = "CANCELLED"
	StatusTimedOut  Status = "TIMED_OUT"
	StatusFailed    Status = "FAILED"
)

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusCancelled || s == StatusTimedOut || s == StatusFailed
}

// Session is the live state of a single task run. It is owned exclusively by
// the runner for the lifetime of the run and reset when the run terminates.
type Session struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Status      Status       `json:"status"`
	History     []StepRecord `json:"history"`
	StartedAt   time.Time    `json:"started_at"`
}

// ExecResult records the outcome of executing a single action.
type ExecResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// StepRecord is one entry in a session's history. Records are append-only and
// never mutated once the step completes.
type StepRecord struct {
	Step      int            `json:"step"`
	Rationale string         `json:"rationale"`
	Action    ActionKind     `json:"action"`
	Params    map[string]any `json:"params,omitempty"`
	Result    *ExecResult    `json:"result,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Result is the terminal outcome of a task run, returned to the caller with
// the complete step history so it can reconstruct what was attempted.
type Result struct {
	TaskID         string       `json:"task_id"`
	Status         Status       `json:"status"`
	Message        string       `json:"message"`
	History        []StepRecord `json:"history"`
	StepsCompleted int          `json:"steps_completed"`
}

// CopyHistory returns an independent deep copy of a step history. The live
// history keeps mutating after a snapshot is taken, so handing out a shared
// slice is never safe.
func CopyHistory(history []StepRecord) []StepRecord {
	if history == nil {
		return nil
	}
	out := make([]StepRecord, len(history))
	for i, rec := range history {
		out[i] = rec
		if rec.Params != nil {
			params := make(map[string]any, len(rec.Params))
			for k, v := range rec.Params {
				params[k] = v
			}
			out[i].Params = params
		}
		if rec.Result != nil {
			res := *rec.Result
			out[i].Result = &res
		}
	}
	return out
}
