package rendering

import (
	"strings"

	"github.com/jonathan/continuity-handoff/internal/textutil"
	"github.com/jonathan/continuity-handoff/internal/validation"
)

// Section headings of an assembled handoff
const (
	HeadingKeyPoints    = "## KEY POINTS"
	HeadingDetailed     = "## DETAILED CONTEXT"
	HeadingContinuation = "## CONTINUATION"
	ContinuationCue     = "Continue the conversation naturally from where it left off."
)

// Assembly is a rendered handoff document
type Assembly struct {
	Text    string
	Tokens  int
	Trimmed bool
}

// Assemble renders title, primer and optional deep context in fixed order.
// When capTokens > 0 and the document exceeds it, only the deep context is
// trimmed. Reference tags are stripped from primer prose; table rows keep them.
func Assemble(title, primer, deep string, capTokens int) Assembly {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Handoff"
	}
	primer = StripProse(primer)
	deep = strings.TrimSpace(deep)

	text := compose(title, primer, deep)
	tokens := textutil.EstimateTokens(text)
	if capTokens <= 0 || tokens <= capTokens || deep == "" {
		return Assembly{Text: text, Tokens: tokens}
	}

	budget := capTokens*textutil.CharsPerToken - runeLen(compose(title, primer, ""))
	// the deep section adds its heading and separators
	budget -= runeLen("\n\n"+HeadingDetailed+"\n") + 1
	deep = strings.TrimSpace(textutil.TruncateRunes(deep, budget))

	text = compose(title, primer, deep)
	tokens = textutil.EstimateTokens(text)
	// the character budget can undershoot a real tokenizer
	for tokens > capTokens && deep != "" {
		deep = strings.TrimSpace(textutil.TruncateRunes(deep, runeLen(deep)-(tokens-capTokens)))
		text = compose(title, primer, deep)
		tokens = textutil.EstimateTokens(text)
	}
	return Assembly{Text: text, Tokens: tokens, Trimmed: true}
}

func compose(title, primer, deep string) string {
	var sb strings.Builder
	sb.WriteString("# " + title + "\n\n")
	sb.WriteString(HeadingKeyPoints + "\n")
	sb.WriteString(primer)
	if deep != "" {
		sb.WriteString("\n\n" + HeadingDetailed + "\n")
		sb.WriteString(deep)
	}
	sb.WriteString("\n\n" + HeadingContinuation + "\n")
	sb.WriteString(ContinuationCue)
	return sb.String()
}

// StripProse removes reference tags from every line that is not a table row
func StripProse(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "|") {
			continue
		}
		if !validation.EvidenceTagRe.MatchString(line) {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		lines[i] = indent + validation.StripEvidence(line)
	}
	return strings.Join(lines, "\n")
}

func runeLen(s string) int {
	return len([]rune(s))
}

// StripKeyPoints applies StripProse to the KEY POINTS section of an assembled
// document, leaving the detailed context and continuation untouched. Text
// without the heading is returned unchanged.
func StripKeyPoints(doc string) string {
	start := strings.Index(doc, HeadingKeyPoints)
	if start < 0 {
		return doc
	}
	bodyStart := start + len(HeadingKeyPoints)
	end := len(doc)
	for _, h := range []string{HeadingDetailed, HeadingContinuation} {
		if i := strings.Index(doc[bodyStart:], h); i >= 0 && bodyStart+i < end {
			end = bodyStart + i
		}
	}
	section := doc[bodyStart:end]
	stripped := "\n" + StripProse(section)
	if end < len(doc) {
		stripped += "\n\n"
	}
	return doc[:bodyStart] + stripped + doc[end:]
}
