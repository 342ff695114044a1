package selection

import (
	"github.com/jonathan/continuity-handoff/internal/embedding"
	"github.com/jonathan/continuity-handoff/internal/textutil"
)

// Selected is a chosen candidate and its index in the input
type Selected struct {
	Index int
	Text  string
}

// Select runs greedy Maximal Marginal Relevance. Each round picks the
// unselected candidate maximizing
//
//	lambda*cos(c, query)*c.Weight - (1-lambda)*max cos(c, selected)
//
// with ties going to the earlier candidate. The query is normalized; a nil or
// mismatched query falls back to the centroid of all candidates. When
// len(candidates) <= k every candidate is returned in input order.
func Select(candidates []Candidate, k int, lambda float64, query []float32) []Selected {
	if len(candidates) == 0 || k <= 0 {
		return []Selected{}
	}
	if len(candidates) <= k {
		out := make([]Selected, len(candidates))
		for i, c := range candidates {
			out[i] = Selected{Index: i, Text: c.Text}
		}
		return out
	}

	dim := len(candidates[0].Vector)
	var q []float32
	if len(query) == dim && dim > 0 {
		q = embedding.L2Normalize(append([]float32(nil), query...))
	} else {
		vecs := make([][]float32, len(candidates))
		for i, c := range candidates {
			vecs[i] = c.Vector
		}
		q = embedding.Centroid(vecs)
	}

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = embedding.Cosine(c.Vector, q) * c.Weight
	}

	// maxSim[i] tracks max cosine between i and anything selected so far
	maxSim := make([]float64, len(candidates))
	used := make([]bool, len(candidates))
	out := make([]Selected, 0, k)

	for len(out) < k {
		best := -1
		bestScore := 0.0
		for i := range candidates {
			if used[i] {
				continue
			}
			score := lambda*relevance[i] - (1-lambda)*maxSim[i]
			if best < 0 || score > bestScore {
				best = i
				bestScore = score
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		out = append(out, Selected{Index: best, Text: candidates[best].Text})

		for i := range candidates {
			if used[i] {
				continue
			}
			if sim := embedding.Cosine(candidates[i].Vector, candidates[best].Vector); sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}
	return out
}

// BudgetK returns how many chunks of average size fit in tokenBudget, capped
// at maxK and never below 1. A zero budget means no budget.
func BudgetK(texts []string, tokenBudget, maxK int) int {
	if maxK < 1 {
		maxK = 1
	}
	if tokenBudget <= 0 || len(texts) == 0 {
		return maxK
	}
	total := 0
	for _, t := range texts {
		total += textutil.EstimateTokens(t)
	}
	avg := total / len(texts)
	if avg <= 0 {
		return maxK
	}
	k := tokenBudget / avg
	if k > maxK {
		k = maxK
	}
	if k < 1 {
		k = 1
	}
	return k
}
