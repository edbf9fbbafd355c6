package security

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTaskInput_EmptyBlocked(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		res := ValidateTaskInput(input)
		assert.True(t, res.Blocked, "input %q should be blocked", input)
		assert.False(t, res.Valid)
		assert.Equal(t, "empty task input", res.Reason)
	}
}

func TestValidateTaskInput_DestructivePatternBlocked(t *testing.T) {
	cases := []string{
		"open a terminal and run rm -rf /",
		"please FORMAT C: for me",
		"del /s everything in temp",
		"shutdown the machine",
		"run taskkill /f on chrome",
	}
	for _, input := range cases {
		res := ValidateTaskInput(input)
		assert.True(t, res.Blocked, "input %q should be blocked", input)
		assert.Contains(t, res.Reason, "destructive command")
	}
}

func TestValidateTaskInput_SensitiveKeywordWarnsWithoutBlocking(t *testing.T) {
	res := ValidateTaskInput("open the password manager")
	require.False(t, res.Blocked)
	assert.True(t, res.Valid)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "password")
}

func TestValidateTaskInput_SanitizesControlCharsAndWhitespace(t *testing.T) {
	res := ValidateTaskInput("open\x00 the\x1f   file\t\tmanager")
	require.True(t, res.Valid)
	assert.Equal(t, "open the file manager", res.Sanitized)
}

func TestValidateTaskInput_TruncatesLongInput(t *testing.T) {
	res := ValidateTaskInput(strings.Repeat("a", 2000))
	require.True(t, res.Valid)
	assert.Len(t, res.Sanitized, maxTaskLength)
}

func TestValidateTaskInput_TruncatesOnRuneBoundary(t *testing.T) {
	res := ValidateTaskInput(strings.Repeat("日本語", 500))
	require.True(t, res.Valid)
	assert.True(t, utf8.ValidString(res.Sanitized))
	assert.Equal(t, maxTaskLength, utf8.RuneCountInString(res.Sanitized))
}

func TestCoordinateGuard_OutOfBoundsBlocked(t *testing.T) {
	g := NewCoordinateGuard(1920, 1080)

	for _, c := range []struct{ x, y int }{
		{-1, 100}, {100, -1}, {1921, 100}, {100, 1081},
	} {
		ok, warning := g.Check(c.x, c.y)
		assert.False(t, ok, "(%d,%d) should be blocked", c.x, c.y)
		assert.Contains(t, warning, "outside screen bounds")
	}
}

func TestCoordinateGuard_CloseButtonZoneBlocked(t *testing.T) {
	g := NewCoordinateGuard(1920, 1080)

	ok, warning := g.Check(1900, 20)
	assert.False(t, ok)
	assert.Contains(t, warning, "window_close_button")
}

func TestCoordinateGuard_TrayAndLauncherWarnOnly(t *testing.T) {
	g := NewCoordinateGuard(1920, 1080)

	ok, warning := g.Check(1800, 1060) // system tray
	assert.True(t, ok, "medium severity should not block")
	assert.Contains(t, warning, "system_tray")

	ok, warning = g.Check(30, 1050) // launcher corner
	assert.True(t, ok, "low severity should not block")
	assert.Contains(t, warning, "start_menu")
}

func TestCoordinateGuard_SafeAreaPasses(t *testing.T) {
	g := NewCoordinateGuard(1920, 1080)

	ok, warning := g.Check(960, 540)
	assert.True(t, ok)
	assert.Empty(t, warning)
}

func TestDetectSensitive(t *testing.T) {
	detections := DetectSensitive("card 4111-1111-1111-1111 mail bob@example.com")

	types := make(map[string]string)
	for _, d := range detections {
		types[d.Type] = d.MaskedValue
	}
	require.Contains(t, types, "credit_card")
	require.Contains(t, types, "email")
	assert.NotContains(t, types["credit_card"], "1111-1111", "middle digits must be masked")

	assert.True(t, ContainsSensitive("ssn 123-45-6789"))
	assert.False(t, ContainsSensitive("open the settings panel"))
}
