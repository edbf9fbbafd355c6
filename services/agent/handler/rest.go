package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hyperos-labs/agent-core/internal/domain"
	"github.com/hyperos-labs/agent-core/internal/security"
	"github.com/hyperos-labs/agent-core/services/agent"
)

// REST handles HTTP requests for the agent control API.
type REST struct {
	runner *agent.Runner
	audit  *security.AuditLog
	logger *slog.Logger
}

// NewREST creates a new REST handler.
func NewREST(runner *agent.Runner, audit *security.AuditLog, logger *slog.Logger) *REST {
	return &REST{runner: runner, audit: audit, logger: logger}
}

// SubmitTaskRequest is the JSON body for POST /api/v1/tasks.
type SubmitTaskRequest struct {
	Task string `json:"task"`
}

// SubmitTaskResponse is the 202 response body.
type SubmitTaskResponse struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// StatusResponse is the GET /api/v1/status response body.
type StatusResponse struct {
	Status string `json:"status"`
	Task   string `json:"task,omitempty"`
}

// CancelResponse is the POST /api/v1/tasks/cancel response body.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// SubmitTask handles POST /api/v1/tasks. The run continues in the background;
// progress is observable through /api/v1/status and the audit trail.
func (h *REST) SubmitTask(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("agent-api").Start(r.Context(), "api.submit_task")
	defer span.End()

	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Task == "" {
		writeError(w, http.StatusBadRequest, "field 'task' is required")
		return
	}

	// The run outlives this request, so it must not inherit the request
	// context.
	handle, err := h.runner.Start(context.WithoutCancel(ctx), req.Task)
	if err != nil {
		h.writeStartError(w, err)
		return
	}

	span.SetAttributes(attribute.String("task.id", handle.TaskID()))
	h.logger.Info("task submitted",
		slog.String("task_id", handle.TaskID()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(SubmitTaskResponse{
		TaskID:    handle.TaskID(),
		Status:    string(domain.StatusRunning),
		StartedAt: time.Now().UTC(),
	})
}

func (h *REST) writeStartError(w http.ResponseWriter, err error) {
	var (
		already *domain.AlreadyRunningError
		limited *domain.RateLimitExceededError
		blocked *domain.ValidationBlockedError
	)
	switch {
	case errors.As(err, &already):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfter))
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &blocked):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("failed to start task", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to start task")
	}
}

// CancelTask handles POST /api/v1/tasks/cancel.
func (h *REST) CancelTask(w http.ResponseWriter, r *http.Request) {
	cancelled := h.runner.Cancel()
	if !cancelled {
		writeError(w, http.StatusConflict, "no task is running")
		return
	}

	h.logger.Info("cancellation requested")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CancelResponse{Cancelled: true})
}

// GetStatus handles GET /api/v1/status.
func (h *REST) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, task := h.runner.Status()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		Status: string(status),
		Task:   task,
	})
}

// GetAudit handles GET /api/v1/audit?n=50.
func (h *REST) GetAudit(w http.ResponseWriter, r *http.Request) {
	n := 50
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "parameter 'n' must be a positive integer")
			return
		}
		n = parsed
	}

	entries, err := h.audit.Recent(n)
	if err != nil {
		h.logger.Error("failed to read audit log", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"entries": entries})
}

// VerifyAudit handles GET /api/v1/audit/verify — walks today's hash chain.
func (h *REST) VerifyAudit(w http.ResponseWriter, r *http.Request) {
	badIndex, err := h.audit.Verify()
	if err != nil {
		h.logger.Error("audit verification failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to verify audit log")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if badIndex >= 0 {
		json.NewEncoder(w).Encode(map[string]any{"valid": false, "first_invalid": badIndex})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"valid": true})
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Readyz handles GET /readyz — ready when the audit log is writable.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := h.audit.Recent(1); err != nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not ready")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
