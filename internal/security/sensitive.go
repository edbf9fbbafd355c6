package security

import (
	"regexp"
	"strings"
)

// sensitivePatterns detect data shapes that should never leak into logs or
// oracle rationale.
var sensitivePatterns = map[string]*regexp.Regexp{
	"credit_card": regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
	"email":       regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	"phone":       regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`),
	"ssn":         regexp.MustCompile(`\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`),
	"api_key":     regexp.MustCompile(`\b[A-Za-z0-9_-]{32,}\b`),
}

// Detection is one sensitive-data match with its value masked.
type Detection struct {
	Type        string `json:"type"`
	MaskedValue string `json:"masked_value"`
	Warning     string `json:"warning"`
}

// DetectSensitive scans text for sensitive data patterns and returns the
// matches with their values masked.
func DetectSensitive(text string) []Detection {
	var detections []Detection
	for dataType, pattern := range sensitivePatterns {
		for _, match := range pattern.FindAllString(text, -1) {
			detections = append(detections, Detection{
				Type:        dataType,
				MaskedValue: mask(match),
				Warning:     "detected " + strings.ReplaceAll(dataType, "_", " ") + " in content",
			})
		}
	}
	return detections
}

// ContainsSensitive is a quick boolean check over all patterns.
func ContainsSensitive(text string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

func mask(value string) string {
	if len(value) > 8 {
		return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
	}
	return strings.Repeat("*", len(value))
}
