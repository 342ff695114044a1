package selection

import (
	"context"
	"sort"

	"github.com/jonathan/continuity-handoff/internal/embedding"
	"github.com/jonathan/continuity-handoff/internal/textutil"
)

// RecallPool ranks earlier checkpoint summaries by similarity to the title and
// returns up to size of them scoring at least threshold, most similar first.
// Chatter is dropped before ranking.
func RecallPool(ctx context.Context, provider embedding.Provider, title string, summaries []string, threshold float64, size int) []string {
	pool := make([]string, 0, len(summaries))
	for _, s := range summaries {
		if s != "" && !IsChatter(s) {
			pool = append(pool, s)
		}
	}
	if len(pool) == 0 || size <= 0 {
		return []string{}
	}
	if title == "" {
		title = "Untitled"
	}

	vecs, err := provider.Embed(ctx, append([]string{textutil.Normalize(title)}, pool...))
	if err != nil || len(vecs) != len(pool)+1 {
		return []string{}
	}

	type scored struct {
		idx int
		sim float64
	}
	ranked := make([]scored, 0, len(pool))
	for i := range pool {
		sim := embedding.Cosine(vecs[i+1], vecs[0])
		if sim >= threshold {
			ranked = append(ranked, scored{i, sim})
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].sim > ranked[b].sim })
	if len(ranked) > size {
		ranked = ranked[:size]
	}

	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = pool[r.idx]
	}
	return out
}
