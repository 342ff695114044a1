// Package selection picks a relevant, diverse subset of conversation chunks
// for the extractive pass.
package selection

import (
	"regexp"
	"strings"
)

// Category is the heuristic role of a chunk
type Category string

// Categories in priority order
const (
	CategoryDecisions   Category = "decisions"
	CategoryFacts       Category = "facts"
	CategoryConstraints Category = "constraints"
	CategoryAsks        Category = "asks"
	CategoryArtifacts   Category = "artifacts"
)

var categoryRules = []struct {
	category Category
	re       *regexp.Regexp
}{
	{CategoryDecisions, regexp.MustCompile(`decided|decision|choose|approved`)},
	{CategoryFacts, regexp.MustCompile(`fact|data|metric`)},
	{CategoryConstraints, regexp.MustCompile(`constraint|limit|blocked|risk`)},
	{CategoryAsks, regexp.MustCompile(`ask|question|need|todo`)},
	{CategoryArtifacts, regexp.MustCompile(`code|snippet|artifact|repo|script`)},
}

var categoryWeights = map[Category]float64{
	CategoryDecisions:   1.3,
	CategoryFacts:       1.15,
	CategoryConstraints: 1.1,
	CategoryAsks:        1.05,
	CategoryArtifacts:   1.0,
}

var (
	tutorialRe  = regexp.MustCompile(`tutorial|how to|guide|step by step`)
	smalltalkRe = regexp.MustCompile(`thanks|hello`)
)

// Categorize returns the first matching category. Text matching none is a fact.
func Categorize(text string) Category {
	lower := strings.ToLower(text)
	for _, rule := range categoryRules {
		if rule.re.MatchString(lower) {
			return rule.category
		}
	}
	return CategoryFacts
}

// CategoryWeight returns the relevance multiplier for a category
func CategoryWeight(c Category) float64 {
	if w, ok := categoryWeights[c]; ok {
		return w
	}
	return 1.0
}

// NoisePenalty down-weights tutorial-style text and small talk
func NoisePenalty(text string) float64 {
	lower := strings.ToLower(text)
	penalty := 1.0
	if tutorialRe.MatchString(lower) {
		penalty *= 0.8
	}
	if smalltalkRe.MatchString(lower) {
		penalty *= 0.85
	}
	return penalty
}

// BaseWeight is CategoryWeight(Categorize(text)) * NoisePenalty(text)
func BaseWeight(text string) float64 {
	return CategoryWeight(Categorize(text)) * NoisePenalty(text)
}

// Candidate is one selectable chunk
type Candidate struct {
	Text   string
	Vector []float32
	Weight float64
}

// BuildCandidates pairs texts with their vectors and heuristic weights.
// texts and vectors must have the same length.
func BuildCandidates(texts []string, vectors [][]float32) []Candidate {
	n := len(texts)
	if len(vectors) < n {
		n = len(vectors)
	}
	out := make([]Candidate, n)
	for i := 0; i < n; i++ {
		out[i] = Candidate{Text: texts[i], Vector: vectors[i], Weight: BaseWeight(texts[i])}
	}
	return out
}
