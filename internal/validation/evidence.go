package validation

import (
	"regexp"
	"strings"
)

var (
	// EvidenceTagRe matches [C3], [S12] and [ref4] reference tags
	EvidenceTagRe = regexp.MustCompile(`\[(?:C|S|ref)\d+\]`)

	chunkTagRe  = regexp.MustCompile(`\[C\d+\]`)
	sourceTagRe = regexp.MustCompile(`\[(?:S|ref)\d+\]`)
	// placeholder tags such as [S#] or [C#] left by templates
	placeholderTagRe = regexp.MustCompile(`\[(?:C|S|ref)#\]`)
	spaceRunRe       = regexp.MustCompile(`[ \t]{2,}`)
)

// StripEvidence removes reference tags from prose and tidies the spacing left behind
func StripEvidence(text string) string {
	text = EvidenceTagRe.ReplaceAllString(text, "")
	text = placeholderTagRe.ReplaceAllString(text, "")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, " .", ".")
	text = strings.ReplaceAll(text, " ,", ",")
	return strings.TrimSpace(text)
}

// CountTags returns the number of chunk tags ([C#]) and source tags ([S#], [ref#])
func CountTags(text string) (chunk, source int) {
	return len(chunkTagRe.FindAllStringIndex(text, -1)), len(sourceTagRe.FindAllStringIndex(text, -1))
}

// FirstTag returns the first reference tag in text, or ""
func FirstTag(text string) string {
	return EvidenceTagRe.FindString(text)
}
