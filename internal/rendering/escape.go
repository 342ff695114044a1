package rendering

import "strings"

// EscapeCell makes text safe for a single markdown table cell.
// Pipes are escaped and line breaks collapse to spaces.
func EscapeCell(text string) string {
	if text == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(text) + 8)

	for _, r := range text {
		switch r {
		case '|':
			result.WriteString(`\|`)
		case '\n', '\r', '\t':
			result.WriteRune(' ')
		default:
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
