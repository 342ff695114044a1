package selection

import (
	"regexp"
	"strings"
)

var (
	metaNoiseRe = regexp.MustCompile("(?i)^(Copy code$|Task:|SCOPE:|ROLE:|BANS:)|```")
	techNoiseRe = regexp.MustCompile(`(?i)\b(SUPERPROMPT|STRICT JSON|json schema|schema|yaml|css|tailwind|SCOPE|BANS)\b|\b(ROLE|Task):`)
	chatterRe   = regexp.MustCompile(`(?i)tutorial|how to|step by step|thanks|hello|marketing|branding|landing page|newsletter|campaign|As an AI|This summary|Changes Made|Data format JSON|link placeholder|fonts|brand colors`)
)

// IsMetaNoise reports whether a chunk is prompt scaffolding or markup
// rather than conversation content
func IsMetaNoise(chunk string) bool {
	c := strings.TrimSpace(chunk)
	return metaNoiseRe.MatchString(c) || techNoiseRe.MatchString(c)
}

// IsChatter reports whether text is small talk or marketing filler
func IsChatter(text string) bool {
	return chatterRe.MatchString(text)
}

// FilterNoise drops meta-noise chunks. If every chunk is noise the input is
// returned unchanged so the pipeline never runs on nothing. The second result
// is the number of chunks dropped.
func FilterNoise(chunks []string) ([]string, int) {
	kept := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if !IsMetaNoise(c) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return chunks, 0
	}
	return kept, len(chunks) - len(kept)
}
