package agent

import (
	"context"

	"github.com/hyperos-labs/agent-core/internal/domain"
)

// Snapshot is the environment state handed to the oracle each step. The
// runner treats the image as opaque; only the dimensions matter to the
// safety layer.
type Snapshot struct {
	Image        []byte
	Width        int
	Height       int
	ActiveWindow string
}

// Capture obtains the current environment state. Implementations may fail
// with transient I/O errors; the runner retries those locally.
type Capture interface {
	Capture(ctx context.Context) (Snapshot, error)
}

// Oracle is the external decision service consulted each step. Failures
// must be returned as *domain.OracleError so the fallback policy can
// classify them by kind rather than by message text.
type Oracle interface {
	Decide(ctx context.Context, task string, snap Snapshot, history []domain.StepRecord) (domain.Decision, error)
}

// Executor performs a single primitive action against the desktop.
type Executor interface {
	Perform(ctx context.Context, action domain.Action) domain.ExecResult
}
