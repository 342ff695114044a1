package repair

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jonathan/continuity-handoff/internal/types"
	"github.com/jonathan/continuity-handoff/internal/validation"
)

// ActionRe is the required shape of NextAction.Action: a capitalized verb
// phrase containing "producing <artifact>"
var ActionRe = regexp.MustCompile(`^[A-Z][A-Za-z-]*\b.*\bproducing\s+\S+`)

var (
	whitespaceRe      = regexp.MustCompile(`\s+`)
	doubleProducingRe = regexp.MustCompile(`(?i)producing\s+producing`)
	researchTitleRe   = regexp.MustCompile(`(?i)research|analy[sz]|extension|acquisition|price|market|review|compar|top\s*\d+`)
	devTitleRe        = regexp.MustCompile(`(?i)bug|fix|debug|test|code|dev|api|deploy`)
	productTitleRe    = regexp.MustCompile(`(?i)plan|strategy|roadmap|product|feature|launch`)
)

// ownerSynonyms maps lowercase fragments to owner roles, checked in order
var ownerSynonyms = []struct {
	re   *regexp.Regexp
	role string
}{
	{regexp.MustCompile(`eng|dev`), "Engineering"},
	{regexp.MustCompile(`design|ux|ui`), "Design"},
	{regexp.MustCompile(`research|analyst`), "Research"},
	{regexp.MustCompile(`prod|pm`), "Product"},
	{regexp.MustCompile(`ops|operation`), "Ops"},
	{regexp.MustCompile(`legal|compliance`), "Legal"},
	{regexp.MustCompile(`growth|mkt|marketing`), "Growth"},
	{regexp.MustCompile(`data|ds`), "Data"},
	{regexp.MustCompile(`founder|ceo`), "Founder"},
}

// DefaultOwner is used when an owner matches no synonym
const DefaultOwner = "Product"

// SanitizeOwner maps free-form owner text onto an owner role
func SanitizeOwner(owner string) string {
	owner = strings.TrimSpace(owner)
	if types.IsOwnerRole(owner) {
		return owner
	}
	lower := strings.ToLower(owner)
	for _, s := range ownerSynonyms {
		if s.re.MatchString(lower) {
			return s.role
		}
	}
	return DefaultOwner
}

// IsResearchTitle reports whether a title looks like a research or comparison thread
func IsResearchTitle(title string) bool {
	return researchTitleRe.MatchString(title)
}

// RepairAction rewrites an action line into the required shape. Lines that
// already comply are returned with whitespace collapsed. Otherwise the first
// words are kept and a verb and artifact are chosen from the thread title.
func RepairAction(line, title string) string {
	text := strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
	if ActionRe.MatchString(text) {
		return text
	}

	text = doubleProducingRe.ReplaceAllString(text, "producing")
	if ActionRe.MatchString(text) {
		return text
	}
	if capitalized := capitalizeFirst(text); ActionRe.MatchString(capitalized) {
		return capitalized
	}

	lower := strings.ToLower(text)
	context := leadingWords(text, 4)

	var verb, artifact string
	switch {
	case IsResearchTitle(title):
		verb, artifact = "Compile", "table.md"
		switch {
		case strings.Contains(lower, "top") || strings.Contains(lower, "list"):
			artifact = "top10.csv"
		case strings.Contains(lower, "source") || strings.Contains(lower, "link"):
			verb, artifact = "Document", "sources.md"
		case strings.Contains(lower, "insight") || strings.Contains(lower, "analysis"):
			verb, artifact = "Analyze", "insights.md"
		}
		if context == "" {
			context = "research findings"
		}
	case devTitleRe.MatchString(title):
		verb, artifact = "Implement", "fix.patch"
		switch {
		case strings.Contains(lower, "test"):
			verb, artifact = "Create", "tests.md"
		case strings.Contains(lower, "repro"):
			verb, artifact = "Document", "repro.md"
		}
		if context == "" {
			context = "bugfix"
		}
	case productTitleRe.MatchString(title):
		verb, artifact = "Create", "plan.md"
		switch {
		case strings.Contains(lower, "risk"):
			verb, artifact = "Analyze", "risks.md"
		case strings.Contains(lower, "next") || strings.Contains(lower, "step"):
			verb, artifact = "Document", "next_steps.md"
		}
		if context == "" {
			context = "product planning"
		}
	default:
		return genericAction(lower)
	}
	return fmt.Sprintf("%s %s producing %s", verb, context, artifact)
}

var (
	knownVerbs   = []string{"Implement", "Create", "Build", "Deploy", "Test", "Review", "Design", "Develop"}
	knownObjects = []string{"system", "component", "feature", "test", "documentation", "API", "interface", "pipeline"}
)

func genericAction(lower string) string {
	verb, object := "Implement", "component"
	words := strings.Fields(lower)
	for _, v := range knownVerbs {
		if containsWord(words, strings.ToLower(v)) {
			verb = v
			break
		}
	}
	for _, o := range knownObjects {
		if strings.Contains(lower, strings.ToLower(o)) {
			object = o
			break
		}
	}
	return verb + " " + object + " producing artifact"
}

func containsWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}

func leadingWords(text string, n int) string {
	text = validation.StripEvidence(text)
	words := strings.Fields(doubleProducingRe.ReplaceAllString(text, ""))
	out := make([]string, 0, n)
	for _, w := range words {
		if strings.EqualFold(w, "producing") {
			break
		}
		out = append(out, w)
		if len(out) == n {
			break
		}
	}
	return strings.Join(out, " ")
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
