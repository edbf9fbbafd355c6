// Package bridge provides HTTP clients for the desktop bridge — the local
// process that owns the screen and input devices. The supervision core talks
// to it over loopback so the automation layer can be swapped or sandboxed
// independently.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hyperos-labs/agent-core/internal/domain"
	"github.com/hyperos-labs/agent-core/internal/version"
	"github.com/hyperos-labs/agent-core/services/agent"
)

const defaultTimeout = 30 * time.Second

// Client talks to the desktop bridge for screen capture and action execution.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a bridge client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

type screenResponse struct {
	Image        []byte `json:"image"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	ActiveWindow string `json:"active_window"`
}

// Capture fetches the current screen state.
func (c *Client) Capture(ctx context.Context) (agent.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/screen", nil)
	if err != nil {
		return agent.Snapshot{}, fmt.Errorf("build capture request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return agent.Snapshot{}, fmt.Errorf("capture screen: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return agent.Snapshot{}, fmt.Errorf("capture screen: bridge returned %d", resp.StatusCode)
	}

	var sr screenResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return agent.Snapshot{}, fmt.Errorf("decode screen response: %w", err)
	}
	return agent.Snapshot{
		Image:        sr.Image,
		Width:        sr.Width,
		Height:       sr.Height,
		ActiveWindow: sr.ActiveWindow,
	}, nil
}

type actionRequest struct {
	Kind   string         `json:"kind"`
	Params map[string]any `json:"params,omitempty"`
}

type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Perform sends an action to the bridge for execution. Transport failures are
// reported as failed results rather than errors; the runner treats both the
// same way and the step history stays uniform.
func (c *Client) Perform(ctx context.Context, action domain.Action) domain.ExecResult {
	body, err := json.Marshal(actionRequest{
		Kind:   string(action.Kind()),
		Params: action.Params(),
	})
	if err != nil {
		return domain.ExecResult{Success: false, Message: "encode action", Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/actions", bytes.NewReader(body))
	if err != nil {
		return domain.ExecResult{Success: false, Message: "build action request", Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("bridge unreachable", slog.String("error", err.Error()))
		return domain.ExecResult{Success: false, Message: "bridge unreachable", Error: err.Error()}
	}
	defer resp.Body.Close()

	var ar actionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return domain.ExecResult{Success: false, Message: "decode action response", Error: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		if ar.Error == "" {
			ar.Error = fmt.Sprintf("bridge returned %d", resp.StatusCode)
		}
		return domain.ExecResult{Success: false, Message: ar.Message, Error: ar.Error}
	}
	return domain.ExecResult{Success: ar.Success, Message: ar.Message, Error: ar.Error}
}
