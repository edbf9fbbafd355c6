package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperos-labs/agent-core/pkg/retry"
)

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), retry.Config{MaxRetries: 3, BaseDelay: time.Millisecond}, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "fn should be called exactly once on immediate success")
}

func TestDo_RetriesOnTransientError(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), retry.Config{MaxRetries: 3, BaseDelay: time.Millisecond}, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient error")
		}
		return nil // succeeds on 2nd attempt
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "fn should be called twice: fail then succeed")
}

func TestDo_ReturnsErrorAfterAllAttempts(t *testing.T) {
	calls := 0
	sentinel := errors.New("permanent error")
	err := retry.Do(context.Background(), retry.Config{MaxRetries: 3, BaseDelay: time.Millisecond}, func() error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, sentinel, err)
	assert.Equal(t, 4, calls, "fn should be called 1 initial + MaxRetries times")
}

func TestDo_ExponentialDelaySchedule(t *testing.T) {
	var delays []time.Duration
	start := time.Now()
	last := start
	_ = retry.Do(context.Background(), retry.Config{
		MaxRetries: 3,
		BaseDelay:  10 * time.Millisecond,
		Base:       2,
		OnRetry: func(int, error) {
			now := time.Now()
			delays = append(delays, now.Sub(last))
			last = now
		},
	}, func() error {
		return errors.New("fail")
	})

	// OnRetry fires before each sleep; measure the full run instead of the
	// individual gaps to avoid scheduler noise: 10 + 20 + 40 = 70ms minimum.
	require.Len(t, delays, 3)
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestDo_DelayCappedAtMaxDelay(t *testing.T) {
	start := time.Now()
	_ = retry.Do(context.Background(), retry.Config{
		MaxRetries: 3,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   15 * time.Millisecond,
		Base:       2,
	}, func() error {
		return errors.New("fail")
	})

	// Uncapped would sleep 10+20+40=70ms; capped is 10+15+15=40ms.
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 70*time.Millisecond)
}

func TestDo_NonRetryableErrorPropagatesImmediately(t *testing.T) {
	calls := 0
	sentinel := errors.New("fatal")
	err := retry.Do(context.Background(), retry.Config{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		Retryable:  func(err error) bool { return !errors.Is(err, sentinel) },
	}, func() error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, sentinel, err)
	assert.Equal(t, 1, calls, "non-retryable error must not be retried")
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := retry.Do(ctx, retry.Config{MaxRetries: 10, BaseDelay: 50 * time.Millisecond}, func() error {
		return errors.New("always fails")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded),
		"expected DeadlineExceeded, got: %v", err)
}

func TestDo_OnRetry_CalledWithCorrectAttempt(t *testing.T) {
	var retryAttempts []int
	_ = retry.Do(context.Background(), retry.Config{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		OnRetry: func(attempt int, _ error) {
			retryAttempts = append(retryAttempts, attempt)
		},
	}, func() error {
		return errors.New("fail")
	})

	// OnRetry is called after attempts 1, 2, 3 (not after the last attempt).
	assert.Equal(t, []int{1, 2, 3}, retryAttempts)
}

func TestDo_ZeroRetries_SingleAttempt(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), retry.Config{MaxRetries: 0, BaseDelay: time.Millisecond}, func() error {
		calls++
		return errors.New("fail")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "MaxRetries=0 means exactly one attempt")
}
