package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperos-labs/agent-core/internal/domain"
)

func TestStart_ReturnsHandleAndResult(t *testing.T) {
	oracle := &fakeOracle{fn: func(call int, _ []domain.StepRecord) (domain.Decision, error) {
		return doneDecision("async done"), nil
	}}
	f := newFixture(t, oracle)

	h, err := f.runner.Start(context.Background(), "async task")
	require.NoError(t, err)
	assert.NotEmpty(t, h.TaskID())

	res, err := h.Result()
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, res.Status)
	assert.Equal(t, h.TaskID(), res.TaskID)
}

func TestStart_RejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	oracle := &fakeOracle{fn: func(call int, _ []domain.StepRecord) (domain.Decision, error) {
		<-release
		return doneDecision("first done"), nil
	}}
	f := newFixture(t, oracle)

	h, err := f.runner.Start(context.Background(), "first")
	require.NoError(t, err)

	_, err = f.runner.Start(context.Background(), "second")
	var already *domain.AlreadyRunningError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, h.TaskID(), already.TaskID)

	close(release)
	_, err = h.Result()
	require.NoError(t, err)
}

func TestHandle_CancelAfterCompletionIsFalse(t *testing.T) {
	oracle := &fakeOracle{fn: func(call int, _ []domain.StepRecord) (domain.Decision, error) {
		return doneDecision("quick"), nil
	}}
	f := newFixture(t, oracle)

	h, err := f.runner.Start(context.Background(), "quick task")
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("run did not finish")
	}
	assert.False(t, h.Cancel())
}
