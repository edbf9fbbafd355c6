package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperos-labs/agent-core/internal/checkpoint"
	"github.com/hyperos-labs/agent-core/internal/domain"
	"github.com/hyperos-labs/agent-core/internal/ratelimit"
	"github.com/hyperos-labs/agent-core/internal/security"
	"github.com/hyperos-labs/agent-core/pkg/breaker"
	"github.com/hyperos-labs/agent-core/services/agent"
)

type stubCapture struct{}

func (stubCapture) Capture(ctx context.Context) (agent.Snapshot, error) {
	return agent.Snapshot{Width: 1920, Height: 1080}, nil
}

type stubOracle struct {
	decide func(history []domain.StepRecord) (domain.Decision, error)
}

func (s stubOracle) Decide(ctx context.Context, task string, snap agent.Snapshot, history []domain.StepRecord) (domain.Decision, error) {
	return s.decide(history)
}

type stubExecutor struct{}

func (stubExecutor) Perform(ctx context.Context, action domain.Action) domain.ExecResult {
	return domain.ExecResult{Success: true, Message: "ok"}
}

func newTestHandler(t *testing.T, oracle stubOracle) (*REST, *security.AuditLog) {
	t.Helper()

	store, err := checkpoint.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	audit, err := security.NewAuditLog(t.TempDir())
	require.NoError(t, err)

	runner := agent.NewRunner(
		stubCapture{}, oracle, stubExecutor{}, store, audit,
		ratelimit.New(100, time.Minute),
		breaker.New(breaker.Config{}),
		agent.WithStepDelay(0),
		agent.WithBaseDelay(time.Millisecond),
	)
	return NewREST(runner, audit, slog.New(slog.NewTextHandler(io.Discard, nil))), audit
}

func newRouter(h *REST) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/tasks", h.SubmitTask)
	r.Post("/api/v1/tasks/cancel", h.CancelTask)
	r.Get("/api/v1/status", h.GetStatus)
	r.Get("/api/v1/audit", h.GetAudit)
	r.Get("/api/v1/audit/verify", h.VerifyAudit)
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	return r
}

func doneOracle() stubOracle {
	return stubOracle{decide: func(_ []domain.StepRecord) (domain.Decision, error) {
		return domain.Decision{
			Rationale: "finished",
			Action:    domain.DoneAction{Reason: "task complete"},
			Done:      true,
		}, nil
	}}
}

func TestSubmitTask_Accepted(t *testing.T) {
	h, _ := newTestHandler(t, doneOracle())
	router := newRouter(h)

	body := bytes.NewBufferString(`{"task":"open the settings panel"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tasks", body))

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp SubmitTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TaskID)
	assert.Equal(t, string(domain.StatusRunning), resp.Status)
}

func TestSubmitTask_EmptyTaskRejected(t *testing.T) {
	h, _ := newTestHandler(t, doneOracle())
	router := newRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tasks",
		bytes.NewBufferString(`{"task":""}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTask_MalformedBodyRejected(t *testing.T) {
	h, _ := newTestHandler(t, doneOracle())
	router := newRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tasks",
		bytes.NewBufferString(`{not json`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTask_BlockedInputUnprocessable(t *testing.T) {
	h, _ := newTestHandler(t, doneOracle())
	router := newRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tasks",
		bytes.NewBufferString(`{"task":"run rm -rf / for me"}`)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSubmitTask_ConflictWhileRunning(t *testing.T) {
	release := make(chan struct{})
	oracle := stubOracle{decide: func(_ []domain.StepRecord) (domain.Decision, error) {
		<-release
		return domain.Decision{
			Rationale: "finished",
			Action:    domain.DoneAction{Reason: "done"},
			Done:      true,
		}, nil
	}}
	h, _ := newTestHandler(t, oracle)
	router := newRouter(h)
	defer close(release)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tasks",
		bytes.NewBufferString(`{"task":"first task"}`)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tasks",
		bytes.NewBufferString(`{"task":"second task"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelTask_NothingRunning(t *testing.T) {
	h, _ := newTestHandler(t, doneOracle())
	router := newRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tasks/cancel", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetStatus_IdleByDefault(t *testing.T) {
	h, _ := newTestHandler(t, doneOracle())
	router := newRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(domain.StatusIdle), resp.Status)
	assert.Empty(t, resp.Task)
}

func TestGetAudit_ReturnsRecentEntries(t *testing.T) {
	h, audit := newTestHandler(t, doneOracle())
	router := newRouter(h)

	require.NoError(t, audit.Append("task-1", domain.ActionClick,
		map[string]any{"x": 10, "y": 20}, "click something", "ok"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audit?n=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Entries []security.AuditEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "task-1", resp.Entries[0].TaskID)
}

func TestGetAudit_InvalidNRejected(t *testing.T) {
	h, _ := newTestHandler(t, doneOracle())
	router := newRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audit?n=zero", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyAudit_CleanChain(t *testing.T) {
	h, audit := newTestHandler(t, doneOracle())
	router := newRouter(h)

	require.NoError(t, audit.Append("task-1", domain.ActionClick, nil, "step one", "ok"))
	require.NoError(t, audit.Append("task-1", domain.ActionDone, nil, "step two", "done"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audit/verify", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["valid"])
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t, doneOracle())
	router := newRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
