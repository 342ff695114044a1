package selection

import (
	"context"
	"sort"
	"strings"

	"github.com/jonathan/continuity-handoff/internal/embedding"
	"github.com/jonathan/continuity-handoff/internal/textutil"
)

// AnchorOptions controls topic anchoring
type AnchorOptions struct {
	Thresholds  []float64 // tried in order while fewer than MinKeep pass
	MinKeep     int
	FallbackTop int // size of the top-by-anchor and most-recent sets in the union fallback
	MaxKeep     int
}

// AnchorResult is the outcome of topic anchoring
type AnchorResult struct {
	Kept      []string
	Threshold float64 // last threshold applied
	Union     bool    // true when the union fallback was used
}

// anchorChars bounds the anchor text built from the title and first chunk
const (
	anchorFirstChunkChars = 200
	anchorMaxChars        = 300
)

// AnchorText is the lowercased title plus the head of the first chunk
func AnchorText(title string, chunks []string) string {
	first := ""
	if len(chunks) > 0 {
		first = textutil.TruncateRunes(strings.ToLower(chunks[0]), anchorFirstChunkChars)
	}
	return textutil.TruncateRunes(strings.ToLower(title)+" "+first, anchorMaxChars)
}

// TopicAnchor keeps chunks similar to the conversation's opening topic so the
// handoff does not drift. It never returns an empty set for non-empty input.
func TopicAnchor(ctx context.Context, provider embedding.Provider, title string, chunks []string, opts AnchorOptions) AnchorResult {
	if len(chunks) == 0 {
		return AnchorResult{Kept: []string{}}
	}

	vecs, err := provider.Embed(ctx, append([]string{AnchorText(title, chunks)}, chunks...))
	if err != nil || len(vecs) != len(chunks)+1 {
		return AnchorResult{Kept: chunks}
	}
	anchor := vecs[0]
	sims := make([]float64, len(chunks))
	for i := range chunks {
		sims[i] = embedding.Cosine(vecs[i+1], anchor)
	}

	res := AnchorResult{Kept: chunks}
	for _, th := range opts.Thresholds {
		res.Threshold = th
		res.Kept = keepAbove(chunks, sims, th)
		if len(res.Kept) >= opts.MinKeep {
			return res
		}
	}

	if len(res.Kept) >= opts.MinKeep {
		return res
	}

	res.Kept = unionFallback(chunks, sims, opts.FallbackTop, opts.MaxKeep)
	res.Union = true
	return res
}

func keepAbove(chunks []string, sims []float64, th float64) []string {
	kept := make([]string, 0, len(chunks))
	for i, c := range chunks {
		if sims[i] >= th {
			kept = append(kept, c)
		}
	}
	return kept
}

// unionFallback takes the top-n chunks by anchor similarity and the n most
// recent chunks, capped at maxKeep, in source order
func unionFallback(chunks []string, sims []float64, n, maxKeep int) []string {
	if n <= 0 || n > len(chunks) {
		n = len(chunks)
	}

	order := make([]int, len(chunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return sims[order[a]] > sims[order[b]] })

	seen := make(map[int]bool)
	picked := make([]int, 0, 2*n)
	add := func(i int) {
		if !seen[i] {
			seen[i] = true
			picked = append(picked, i)
		}
	}
	for _, i := range order[:n] {
		add(i)
	}
	for i := len(chunks) - n; i < len(chunks); i++ {
		add(i)
	}
	if maxKeep > 0 && len(picked) > maxKeep {
		picked = picked[:maxKeep]
	}
	sort.Ints(picked)

	out := make([]string, len(picked))
	for i, idx := range picked {
		out[i] = chunks[idx]
	}
	return out
}
