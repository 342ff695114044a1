// Package textutil provides text normalization, token estimation and hashing helpers
// shared by every pipeline stage.
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gowebpki/jcs"
	"github.com/pkoukk/tiktoken-go"
)

// CharsPerToken is the ratio used by the approximate estimator
const CharsPerToken = 4

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	headingRe     = regexp.MustCompile(`(?m)^[ \t]*#+\s+`)
	emphasisMarks = []string{"**", "__", "`"}
)

// Normalize collapses whitespace runs and strips markdown emphasis and
// line-leading heading markers. A '#' inside a word ("C#", "#12") is kept.
// Normalize(Normalize(x)) == Normalize(x) for every x.
func Normalize(text string) string {
	for {
		next := headingRe.ReplaceAllString(text, "")
		for _, mark := range emphasisMarks {
			next = strings.ReplaceAll(next, mark, "")
		}
		next = strings.TrimSpace(whitespaceRe.ReplaceAllString(next, " "))
		if next == text {
			return text
		}
		text = next
	}
}

// tokenCounter counts cl100k_base tokens once its encoding has loaded and
// ceil(runes/4) when it could not be loaded
type tokenCounter struct {
	load func() (*tiktoken.Tiktoken, error)
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func newTokenCounter(load func() (*tiktoken.Tiktoken, error)) *tokenCounter {
	return &tokenCounter{load: load}
}

func (c *tokenCounter) encoder() *tiktoken.Tiktoken {
	c.once.Do(func() {
		if enc, err := c.load(); err == nil {
			c.enc = enc
		}
	})
	return c.enc
}

func (c *tokenCounter) count(text string) int {
	if text == "" {
		return 0
	}
	if enc := c.encoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return approxTokens(text)
}

func (c *tokenCounter) truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	out := TruncateRunes(text, maxTokens*CharsPerToken)
	for {
		over := c.count(out) - maxTokens
		if over <= 0 {
			return out
		}
		out = TruncateRunes(out, utf8.RuneCountInString(out)-over)
	}
}

func approxTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

var defaultCounter = newTokenCounter(func() (*tiktoken.Tiktoken, error) {
	return tiktoken.GetEncoding("cl100k_base")
})

// EstimateTokens counts cl100k_base tokens, or ceil(runes/4) when the
// encoding is unavailable. The encoding is loaded once per process, so
// identical input always yields the same count.
func EstimateTokens(text string) int {
	return defaultCounter.count(text)
}

// TruncateTokens cuts text to at most maxTokens tokens as EstimateTokens
// counts them, respecting rune boundaries
func TruncateTokens(text string, maxTokens int) string {
	return defaultCounter.truncate(text, maxTokens)
}

// TruncateRunes returns at most n runes of text
func TruncateRunes(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n])
}

// WordCount returns the number of whitespace-separated words
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// ContentHash returns the hex SHA-256 of text
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CanonicalDigest marshals v, canonicalizes it (RFC 8785) and returns the hex
// SHA-256 digest. Equivalent JSON values share a digest regardless of key order.
// Returns an empty string when v cannot be encoded.
func CanonicalDigest(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
