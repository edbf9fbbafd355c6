package retry

import (
	"context"
	"fmt"
	"time"
)

// Config controls retry behaviour.
type Config struct {
	// MaxRetries is the number of retries after the first attempt, so the
	// total number of calls is MaxRetries+1.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps each computed delay. Zero means 30s.
	MaxDelay time.Duration
	// Base is the exponential growth factor. Zero means 2.
	Base float64
	// Retryable reports whether an error is worth retrying. A nil predicate
	// retries every error. Non-retryable errors propagate immediately.
	Retryable func(error) bool
	// OnRetry is called after a failed attempt and before the next delay.
	// attempt is 1-indexed (1 = first attempt just failed). It is for
	// observability only and must not alter control flow.
	OnRetry func(attempt int, err error)
}

// Do calls fn up to cfg.MaxRetries+1 times with exponential backoff.
//
// Wait before retry k (1-indexed) is min(BaseDelay × Base^(k-1), MaxDelay),
// so with BaseDelay=1s and Base=2:
//
//	attempt 1 fails → wait 1s
//	attempt 2 fails → wait 2s
//	attempt 3 fails → wait 4s
//
// Returns nil on first success, or the last error after all attempts.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Base <= 0 {
		cfg.Base = 2
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries+1; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}

		// Last attempt — no delay, just return the error.
		if attempt == cfg.MaxRetries+1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}

		select {
		case <-time.After(delayFor(cfg, attempt)):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		}
	}
	return lastErr
}

// delayFor computes the backoff before retry number attempt (1-indexed).
func delayFor(cfg Config, attempt int) time.Duration {
	d := cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * cfg.Base)
		if d >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}
