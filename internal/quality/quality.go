// Package quality scores an assembled handoff and decides whether it passes the
// continuity gate.
package quality

import (
	"math"

	"github.com/jonathan/continuity-handoff/internal/repair"
	"github.com/jonathan/continuity-handoff/internal/textutil"
	"github.com/jonathan/continuity-handoff/internal/types"
	"github.com/jonathan/continuity-handoff/internal/validation"
)

// Composite weights
const (
	WeightCoverage = 0.35
	WeightActions  = 0.30
	WeightEvidence = 0.25
	WeightGeneric  = 0.10
)

// Target tag densities per 1000 words
const (
	ExtractiveTargetDensity = 5.0
	SourceTargetDensity     = 10.0
)

// DefaultThreshold is the composite score a handoff needs to pass the gate
const DefaultThreshold = 0.9

// Gate failure reasons
const (
	ReasonCoverage = "primer_cov"
	ReasonActions  = "actions"
	ReasonEvidence = "evidence"
	ReasonGeneric  = "generic"
)

// Input is everything the scorer looks at
type Input struct {
	Bundle *types.PrimerBundle
	// Coverage is the enforcer's raw key coverage
	Coverage float64
	// Evidence is the deep or assembled text the tag density is measured on
	Evidence string
	// Assembled is the final document checked for generic phrasing.
	// Evidence is used when empty.
	Assembled string
	// Extractive selects the [C#] density target
	Extractive bool
	// Bullets, when given, mark tags whose quotes failed verification
	Bullets []types.ExtractiveBullet
	// ActionValidity, when set, replaces the validity measured on the bundle.
	// Enforced rows are compliant by construction, so callers pass the share
	// that was valid before canned defaults were substituted.
	ActionValidity *float64
}

// Score computes the QualityScore of a handoff
func Score(in Input) types.QualityScore {
	assembled := in.Assembled
	if assembled == "" {
		assembled = in.Evidence
	}

	s := types.QualityScore{
		PrimerCoverage:  clamp01(in.Coverage),
		EvidenceDensity: EvidenceDensity(in.Evidence, in.Extractive, UnverifiedIDs(in.Bullets)),
	}
	switch {
	case in.ActionValidity != nil:
		s.ActionValidity = clamp01(*in.ActionValidity)
	case in.Bundle != nil:
		s.ActionValidity = repair.ActionValidity(in.Bundle.NextActions)
	}
	if validation.ContainsGeneric(assembled) {
		s.GenericPenalty = 1
	}
	s.GenericScore = 1 - s.GenericPenalty
	s.Composite = Composite(s)
	return s
}

// Composite applies the weighted formula to the component scores
func Composite(s types.QualityScore) float64 {
	c := WeightCoverage*s.PrimerCoverage +
		WeightActions*s.ActionValidity +
		WeightEvidence*s.EvidenceDensity +
		WeightGeneric*s.GenericScore
	return clamp01(math.Round(c*1e6) / 1e6)
}

// EvidenceDensity is the reference-tag rate per 1000 words over the target rate,
// clamped to [0,1]. Extractive text counts [C#] and [S#] tags against
// ExtractiveTargetDensity; other text counts [S#]/[ref#] against SourceTargetDensity.
// Tags listed in unverified do not count.
func EvidenceDensity(text string, extractive bool, unverified map[string]bool) float64 {
	words := textutil.WordCount(text)
	if words < 1 {
		words = 1
	}

	tags := 0
	for _, tag := range validation.EvidenceTagRe.FindAllString(text, -1) {
		if unverified[tag] {
			continue
		}
		isChunk := tag[1] == 'C'
		if isChunk && !extractive {
			continue
		}
		tags++
	}

	target := SourceTargetDensity
	if extractive {
		target = ExtractiveTargetDensity
	}
	perThousand := float64(tags) * 1000 / float64(words)
	return clamp01(perThousand / target)
}

// UnverifiedIDs returns the source ids for which no bullet carries a verified quote
func UnverifiedIDs(bullets []types.ExtractiveBullet) map[string]bool {
	if len(bullets) == 0 {
		return nil
	}
	verified := make(map[string]bool)
	for _, b := range bullets {
		if b.Verified {
			verified[b.SourceID] = true
		} else if _, ok := verified[b.SourceID]; !ok {
			verified[b.SourceID] = false
		}
	}
	out := make(map[string]bool)
	for id, ok := range verified {
		if !ok {
			out[id] = true
		}
	}
	return out
}

// Gate passes when the composite reaches threshold. Reasons list every
// component below its own bar, whether or not the gate passes.
func Gate(s types.QualityScore, threshold float64) types.GateResult {
	var reasons []string
	if s.PrimerCoverage < 1 {
		reasons = append(reasons, ReasonCoverage)
	}
	if s.ActionValidity < 0.9 {
		reasons = append(reasons, ReasonActions)
	}
	if s.EvidenceDensity < 0.8 {
		reasons = append(reasons, ReasonEvidence)
	}
	if s.GenericScore < 1 {
		reasons = append(reasons, ReasonGeneric)
	}
	return types.GateResult{Pass: s.Composite >= threshold, Reasons: reasons}
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
