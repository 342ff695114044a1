package embedding

import (
	"context"
	"strings"
	"unicode"
)

const (
	// DefaultHashDim is the dimension of hashed bag-of-words vectors
	DefaultHashDim = 256
	// maxHashWords bounds how many words of a text contribute to its vector
	maxHashWords = 800
)

// HashProvider embeds text as a hashed bag of words. It has no external
// dependency and always returns the same vector for the same text.
type HashProvider struct {
	Dim int
}

// NewHashProvider returns a HashProvider with the default dimension
func NewHashProvider() *HashProvider {
	return &HashProvider{Dim: DefaultHashDim}
}

// Name identifies the provider in logs
func (p *HashProvider) Name() string { return "hash" }

// Embed never fails
func (p *HashProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.Vector(t)
	}
	return out, nil
}

// Vector returns the L2-normalized hashed term-count vector for text
func (p *HashProvider) Vector(text string) []float32 {
	dim := p.Dim
	if dim <= 0 {
		dim = DefaultHashDim
	}
	v := make([]float32, dim)
	words := tokenize(text)
	if len(words) > maxHashWords {
		words = words[:maxHashWords]
	}
	for _, w := range words {
		h := int64(stringHash(w))
		if h < 0 {
			h = -h
		}
		v[h%int64(dim)]++
	}
	return L2Normalize(v)
}

// tokenize lowercases text and splits it on anything that is not a letter or digit
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// stringHash is the 31-multiplier rolling hash over UTF-16 code units with
// 32-bit wraparound.
func stringHash(s string) int32 {
	var h int32
	for _, r := range s {
		if r > 0xFFFF {
			r -= 0x10000
			h = (h << 5) - h + int32(0xD800+(r>>10))
			h = (h << 5) - h + int32(0xDC00+(r&0x3FF))
			continue
		}
		h = (h << 5) - h + int32(r)
	}
	return h
}
