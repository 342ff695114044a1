package rendering

import (
	"regexp"
	"strings"

	"github.com/jonathan/continuity-handoff/internal/textutil"
	"github.com/jonathan/continuity-handoff/internal/types"
	"github.com/jonathan/continuity-handoff/internal/validation"
)

// Injection section limits
const (
	MaxInjectionFacts     = 5
	MaxInjectionDecisions = 4
	MaxInjectionQuestions = 3
	MaxInjectionSteps     = 4

	// DefaultInjectionChars caps the block when no limit is configured
	DefaultInjectionChars = 9000

	minItemChars      = 6
	shortStepCount    = 2
	shortStepMaxRunes = 80
)

var placeholderRe = regexp.MustCompile(`(?i)insufficient evidence|\bTBD\b`)

const (
	injectionHeader      = "CONTEXT RECAP"
	injectionInstruction = "Instruction: Continue seamlessly as if the session never stopped. Be concise and actionable."
)

// BuildInjection renders the ready-to-paste recap block for a new conversation.
// Empty sections get an explicit note rather than being dropped. When the block
// exceeds maxChars the steps shrink to two short lines, then the text is cut.
func BuildInjection(b *types.PrimerBundle, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultInjectionChars
	}
	if b == nil {
		b = &types.PrimerBundle{}
	}

	facts := cleanItems(b.KeyFacts, MaxInjectionFacts)
	decisions := cleanItems(b.Decisions, MaxInjectionDecisions)
	questions := cleanItems(b.OpenQuestions, MaxInjectionQuestions)
	actions := make([]string, 0, len(b.NextActions))
	for _, r := range b.NextActions {
		actions = append(actions, r.Action)
	}
	steps := cleanItems(actions, MaxInjectionSteps)

	out := renderInjection(facts, decisions, questions, steps)
	if len([]rune(out)) <= maxChars {
		return out
	}

	if len(steps) > shortStepCount {
		steps = steps[:shortStepCount]
	}
	for i := range steps {
		steps[i] = textutil.TruncateRunes(steps[i], shortStepMaxRunes)
	}
	return textutil.TruncateRunes(renderInjection(facts, decisions, questions, steps), maxChars)
}

func renderInjection(facts, decisions, questions, steps []string) string {
	var sb strings.Builder
	sb.WriteString(injectionHeader + "\n")
	writeSection(&sb, validation.HeadingFacts, facts, "facts")
	writeSection(&sb, validation.HeadingDecisions, decisions, "decisions")
	writeSection(&sb, validation.HeadingQuestions, questions, "open questions")
	writeSection(&sb, validation.HeadingSteps, steps, "next steps")
	sb.WriteString("\n" + injectionInstruction)
	return sb.String()
}

func writeSection(sb *strings.Builder, heading string, items []string, what string) {
	sb.WriteString(heading + "\n")
	if len(items) == 0 {
		sb.WriteString("  • No strong evidence found; continue by collecting " + what + ".\n")
		return
	}
	for _, item := range items {
		sb.WriteString("  • " + item + "\n")
	}
}

// cleanItems strips tags and placeholders, drops short, generic or banned
// entries and keeps at most limit items
func cleanItems(items []string, limit int) []string {
	out := make([]string, 0, limit)
	for _, item := range items {
		if len(out) == limit {
			break
		}
		item = placeholderRe.ReplaceAllString(item, "")
		item = strings.Trim(Prose(item), " -•")
		if len([]rune(item)) < minItemChars {
			continue
		}
		if validation.ContainsGeneric(item) || len(validation.FindBanned(item)) > 0 {
			continue
		}
		out = append(out, item)
	}
	return out
}
