package validation

import (
	"regexp"
	"strings"
)

// Injection block headings
const (
	HeadingFacts     = "- Facts:"
	HeadingDecisions = "- Decisions:"
	HeadingQuestions = "- Open Questions:"
	HeadingSteps     = "- Next Steps:"
)

// Injection issue codes
const (
	IssueEmpty            = "empty"
	IssueBannedPhrases    = "banned_phrases"
	IssueMissingFacts     = "missing_facts_header"
	IssueMissingDecisions = "missing_decisions_header"
	IssueMissingQuestions = "missing_questions_header"
	IssueMissingSteps     = "missing_steps_header"
	IssueFewBullets       = "insufficient_bullets"
)

const minInjectionBullets = 4

var injectionHeadings = []struct {
	issue string
	re    *regexp.Regexp
}{
	{IssueMissingFacts, headingRe(HeadingFacts)},
	{IssueMissingDecisions, headingRe(HeadingDecisions)},
	{IssueMissingQuestions, headingRe(HeadingQuestions)},
	{IssueMissingSteps, headingRe(HeadingSteps)},
}

func headingRe(h string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(h))
}

// InjectionResult is the verdict on an injection block
type InjectionResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}

// ValidateInjection checks that the block is non-empty, carries all four
// headings with at least four bullets, and contains no banned phrase or
// unresolved sentinel.
func ValidateInjection(injection string) InjectionResult {
	if strings.TrimSpace(injection) == "" {
		return InjectionResult{Issues: []string{IssueEmpty}}
	}

	var issues []string
	if len(FindBanned(injection)) > 0 || strings.Contains(strings.ToLower(injection), "insufficient evidence") {
		issues = append(issues, IssueBannedPhrases)
	}
	for _, h := range injectionHeadings {
		if !h.re.MatchString(injection) {
			issues = append(issues, h.issue)
		}
	}
	if strings.Count(injection, "•") < minInjectionBullets {
		issues = append(issues, IssueFewBullets)
	}
	return InjectionResult{Valid: len(issues) == 0, Issues: issues}
}
