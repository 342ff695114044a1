// Package chunking turns captured conversation messages into ordered chunks
// for the handoff pipeline.
package chunking

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultMaxChars is roughly 3000 tokens
const DefaultMaxChars = 12000

// Message is one captured conversation turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Text renders the message the way it appears inside a chunk
func (m Message) Text() string {
	role := strings.TrimSpace(m.Role)
	if role == "" {
		role = "unknown"
	}
	return role + ": " + strings.TrimSpace(m.Content) + "\n\n"
}

// SmartChunks packs messages into chunks of at most maxChars runes without
// splitting a message across chunks. A message longer than maxChars never
// shares a chunk; it is cut at word boundaries into chunks of its own.
func SmartChunks(messages []Message, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		text := m.Text()
		n := len([]rune(text))

		switch {
		case n > maxChars:
			flush()
			chunks = append(chunks, splitWords(text, maxChars)...)
		case currentLen+n > maxChars:
			flush()
			current.WriteString(text)
			currentLen = n
		default:
			current.WriteString(text)
			currentLen += n
		}
	}
	flush()
	return chunks
}

// splitWords cuts text into pieces of at most maxChars runes at spaces.
// A single word longer than maxChars is hard-cut.
func splitWords(text string, maxChars int) []string {
	var pieces []string
	var piece []rune
	for _, word := range strings.Split(text, " ") {
		w := []rune(word)
		sep := 0
		if len(piece) > 0 {
			sep = 1
		}
		if len(piece)+sep+len(w) <= maxChars {
			if sep == 1 {
				piece = append(piece, ' ')
			}
			piece = append(piece, w...)
			continue
		}
		if len(piece) > 0 {
			pieces = append(pieces, string(piece))
			piece = piece[:0]
		}
		for len(w) > maxChars {
			pieces = append(pieces, string(w[:maxChars]))
			w = w[maxChars:]
		}
		piece = append(piece, w...)
	}
	if strings.TrimSpace(string(piece)) != "" {
		pieces = append(pieces, string(piece))
	}
	return pieces
}

var (
	jwtLikeRe = regexp.MustCompile(`\b[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`)
	bearerRe  = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]+`)
	apiKeyRe  = regexp.MustCompile(`(?i)\bapi_?key\s*[:=]\s*[A-Za-z0-9._-]+`)
	urlRe     = regexp.MustCompile("https?://[^\\s)'\"`]+")
)

// Sanitize redacts bearer tokens, JWT-shaped strings and API keys, and drops
// query strings from URLs
func Sanitize(text string) string {
	text = jwtLikeRe.ReplaceAllString(text, "[REDACTED_TOKEN]")
	text = bearerRe.ReplaceAllString(text, "Bearer [REDACTED]")
	text = apiKeyRe.ReplaceAllString(text, "apikey: [REDACTED]")
	return urlRe.ReplaceAllStringFunc(text, func(raw string) string {
		u, err := url.Parse(raw)
		if err != nil {
			return raw
		}
		u.RawQuery = ""
		u.ForceQuery = false
		return u.String()
	})
}

// SanitizeAll applies Sanitize to every chunk
func SanitizeAll(chunks []string) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = Sanitize(c)
	}
	return out
}
