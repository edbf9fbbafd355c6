package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusIdle.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusSucceeded.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusTimedOut.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

func TestCopyHistory_Independent(t *testing.T) {
	orig := []StepRecord{
		{
			Step:      1,
			Rationale: "first",
			Action:    ActionClick,
			Params:    map[string]any{"x": 10, "y": 20},
			Result:    &ExecResult{Success: true, Message: "ok"},
			Timestamp: time.Now(),
		},
	}

	cp := CopyHistory(orig)
	require.Len(t, cp, 1)

	orig[0].Params["x"] = 999
	orig[0].Result.Message = "mutated"

	assert.Equal(t, 10, cp[0].Params["x"])
	assert.Equal(t, "ok", cp[0].Result.Message)
}

func TestCopyHistory_NilStaysNil(t *testing.T) {
	assert.Nil(t, CopyHistory(nil))
}

func TestDecodeAction_Click(t *testing.T) {
	a, err := DecodeAction(ActionClick, map[string]any{"x": float64(100), "y": float64(250)})
	require.NoError(t, err)

	click, ok := a.(ClickAction)
	require.True(t, ok)
	assert.Equal(t, 100, click.X)
	assert.Equal(t, 250, click.Y)
}

func TestDecodeAction_ClickMissingCoordinates(t *testing.T) {
	_, err := DecodeAction(ActionClick, map[string]any{"x": 100})
	assert.Error(t, err)

	_, err = DecodeAction(ActionClick, map[string]any{"x": "left", "y": "top"})
	assert.Error(t, err)
}

func TestDecodeAction_TypeWithOptionalTarget(t *testing.T) {
	a, err := DecodeAction(ActionType, map[string]any{"text": "hello"})
	require.NoError(t, err)
	typed := a.(TypeAction)
	assert.Equal(t, "hello", typed.Text)
	assert.Nil(t, typed.X)

	a, err = DecodeAction(ActionType, map[string]any{"text": "hi", "x": 5, "y": 6})
	require.NoError(t, err)
	typed = a.(TypeAction)
	require.NotNil(t, typed.X)
	assert.Equal(t, 5, *typed.X)
	assert.Equal(t, 6, *typed.Y)
}

func TestDecodeAction_TypeRequiresText(t *testing.T) {
	_, err := DecodeAction(ActionType, map[string]any{"x": 1, "y": 2})
	assert.Error(t, err)
}

func TestDecodeAction_PressKey(t *testing.T) {
	a, err := DecodeAction(ActionPressKey, map[string]any{"key": "ctrl+s"})
	require.NoError(t, err)
	assert.Equal(t, "ctrl+s", a.(PressKeyAction).Key)

	_, err = DecodeAction(ActionPressKey, map[string]any{"key": ""})
	assert.Error(t, err)
}

func TestDecodeAction_Wait(t *testing.T) {
	a, err := DecodeAction(ActionWait, map[string]any{"seconds": 2.5})
	require.NoError(t, err)
	assert.Equal(t, 2.5, a.(WaitAction).Seconds)

	_, err = DecodeAction(ActionWait, map[string]any{"seconds": -1})
	assert.Error(t, err)
}

func TestDecodeAction_DoneDefaultsReason(t *testing.T) {
	a, err := DecodeAction(ActionDone, nil)
	require.NoError(t, err)
	assert.Equal(t, "task completed", a.(DoneAction).Reason)
}

func TestDecodeAction_UnknownKind(t *testing.T) {
	_, err := DecodeAction("teleport", nil)
	assert.Error(t, err)
}
