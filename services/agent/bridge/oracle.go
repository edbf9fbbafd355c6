package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hyperos-labs/agent-core/internal/domain"
	"github.com/hyperos-labs/agent-core/internal/version"
	"github.com/hyperos-labs/agent-core/services/agent"
)

// OracleClient consults the decision service. HTTP failures are classified
// into OracleError kinds here, at the boundary, so nothing downstream ever
// matches on error text.
type OracleClient struct {
	url  string
	http *http.Client
}

// NewOracle creates an oracle client for the given decision endpoint.
func NewOracle(url string, timeout time.Duration) *OracleClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OracleClient{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

type decideRequest struct {
	Task    string              `json:"task"`
	Screen  string              `json:"screen,omitempty"`
	Width   int                 `json:"width"`
	Height  int                 `json:"height"`
	Window  string              `json:"active_window,omitempty"`
	History []domain.StepRecord `json:"history,omitempty"`
}

type decideResponse struct {
	Rationale string `json:"rationale"`
	Action    struct {
		Kind   string         `json:"kind"`
		Params map[string]any `json:"params,omitempty"`
	} `json:"action"`
	Done bool `json:"done"`
}

// Decide asks the oracle for the next action given the task, the current
// environment, and the step history.
func (o *OracleClient) Decide(ctx context.Context, task string, snap agent.Snapshot, history []domain.StepRecord) (domain.Decision, error) {
	body, err := json.Marshal(decideRequest{
		Task:    task,
		Screen:  base64.StdEncoding.EncodeToString(snap.Image),
		Width:   snap.Width,
		Height:  snap.Height,
		Window:  snap.ActiveWindow,
		History: history,
	})
	if err != nil {
		return domain.Decision{}, &domain.OracleError{Kind: domain.OracleUnknown,
			Err: fmt.Errorf("encode decide request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return domain.Decision{}, &domain.OracleError{Kind: domain.OracleUnknown,
			Err: fmt.Errorf("build decide request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := o.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return domain.Decision{}, &domain.OracleError{Kind: domain.OracleUnknown, Err: err}
		}
		// Timeouts and connection resets are worth a local retry.
		return domain.Decision{}, &domain.OracleError{Kind: domain.OracleTransient, Err: err}
	}
	defer resp.Body.Close()

	if kind, ok := classifyStatus(resp.StatusCode); ok {
		return domain.Decision{}, &domain.OracleError{Kind: kind,
			Err: fmt.Errorf("oracle returned %d", resp.StatusCode)}
	}

	var dr decideResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return domain.Decision{}, &domain.OracleError{Kind: domain.OracleInvalidResponse,
			Err: fmt.Errorf("decode decide response: %w", err)}
	}

	action, err := domain.DecodeAction(domain.ActionKind(dr.Action.Kind), dr.Action.Params)
	if err != nil {
		return domain.Decision{}, &domain.OracleError{Kind: domain.OracleInvalidResponse, Err: err}
	}

	return domain.Decision{
		Rationale: dr.Rationale,
		Action:    action,
		Done:      dr.Done || action.Kind() == domain.ActionDone,
	}, nil
}

// classifyStatus maps non-2xx responses to error kinds.
func classifyStatus(code int) (domain.OracleErrorKind, bool) {
	switch {
	case code >= 200 && code < 300:
		return "", false
	case code == http.StatusTooManyRequests:
		return domain.OracleRateLimited, true
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.OracleAuth, true
	case code == http.StatusServiceUnavailable || code == http.StatusBadGateway || code == http.StatusGatewayTimeout:
		return domain.OracleUnavailable, true
	case code >= 500:
		return domain.OracleTransient, true
	default:
		return domain.OracleUnknown, true
	}
}
