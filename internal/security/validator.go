// Package security holds the safety layer between the oracle and the
// desktop: input sanitisation, coordinate vetting, sensitive-data detection,
// and the tamper-evident audit log.
package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxTaskLength is the cap applied to task descriptions before any other
// processing.
const maxTaskLength = 1000

// sensitiveKeywords flag (but never block) task text that mentions
// credentials, financial or personal identifiers, or privileged system
// operations.
var sensitiveKeywords = []string{
	// credentials
	"password", "passwd", "secret", "credential", "api_key", "apikey",
	"access_token", "auth_token", "bearer", "private_key",
	// financial
	"credit card", "creditcard", "card number", "cvv", "ccv",
	"bank account", "routing number", "social security", "ssn",
	// personal
	"passport", "driver license", "date of birth", "dob",
	// system
	"sudo", "admin password", "root password", "registry",
}

// destructivePatterns block task text outright. These are command shapes
// with irreversible effects; a match rejects the input before a run starts.
var destructivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-rf`),
	regexp.MustCompile(`(?i)format\s+[a-z]:`),
	regexp.MustCompile(`(?i)del\s+/[sf]`),
	regexp.MustCompile(`(?i)shutdown`),
	regexp.MustCompile(`(?i)taskkill\s+/f`),
}

var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// ValidationResult is the outcome of task-text validation.
type ValidationResult struct {
	Valid     bool
	Sanitized string
	Warnings  []string
	Blocked   bool
	Reason    string
}

// ValidateTaskInput sanitises a task description and decides whether it may
// run. Sensitive keywords produce warnings only; destructive command
// patterns block.
func ValidateTaskInput(task string) ValidationResult {
	if strings.TrimSpace(task) == "" {
		return ValidationResult{
			Blocked: true,
			Reason:  "empty task input",
		}
	}

	sanitized := truncateRunes(strings.TrimSpace(task), maxTaskLength)

	var warnings []string
	lower := strings.ToLower(sanitized)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			warnings = append(warnings, fmt.Sprintf("task contains sensitive keyword: %q", kw))
		}
	}

	for _, pat := range destructivePatterns {
		if pat.MatchString(sanitized) {
			return ValidationResult{
				Sanitized: sanitized,
				Warnings:  warnings,
				Blocked:   true,
				Reason:    "task contains a destructive command pattern",
			}
		}
	}

	sanitized = controlChars.ReplaceAllString(sanitized, "")
	sanitized = whitespace.ReplaceAllString(sanitized, " ")

	return ValidationResult{
		Valid:     true,
		Sanitized: sanitized,
		Warnings:  warnings,
	}
}

// truncateRunes caps s at max runes. Cutting at a byte offset could split a
// multi-byte rune and leave invalid UTF-8 in logs and audit entries.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
