// Package validation detects generic or banned phrasing in handoff text and
// checks the ready-to-paste injection block.
package validation

import (
	"regexp"
	"strings"
)

// genericPatterns are meta or placeholder phrases that must never reach a handoff
var genericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bAs an AI\b`),
	regexp.MustCompile(`(?i)\bChanges Made\b`),
	regexp.MustCompile(`(?i)\bData format\b`),
	regexp.MustCompile(`(?i)\blink placeholder\b`),
	regexp.MustCompile(`(?i)\bLorem ipsum\b`),
	regexp.MustCompile(`(?i)\bThis section intentionally left blank\b`),
}

// bannedPhrases extends the generic patterns with phrasing banned from the
// injection block. Matching is case-insensitive.
var bannedPhrases = []string{
	"As an AI",
	"This summary",
	"Changes Made",
	"Data format",
	"link placeholder",
	"Lorem ipsum",
	"marketing",
	"fonts",
	"brand colors",
	"...",
	"…",
}

// IsGeneric reports whether s is blank or matches a generic pattern
func IsGeneric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	return ContainsGeneric(s)
}

// ContainsGeneric reports whether any generic pattern occurs in text
func ContainsGeneric(text string) bool {
	for _, re := range genericPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// FindBanned returns the banned phrases present in text, in list order
func FindBanned(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, p := range bannedPhrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			found = append(found, p)
		}
	}
	return found
}

// StripEllipses removes "..." and "…" placeholders
func StripEllipses(text string) string {
	text = strings.ReplaceAll(text, "...", "")
	return strings.ReplaceAll(text, "…", "")
}
