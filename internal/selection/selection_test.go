package selection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/continuity-handoff/internal/embedding"
	"github.com/jonathan/continuity-handoff/internal/textutil"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		text string
		want Category
	}{
		{"We decided to use Postgres", CategoryDecisions},
		{"The metric dropped 20%", CategoryFacts},
		{"Rate limit is the main risk", CategoryConstraints},
		{"Open question about auth", CategoryAsks},
		{"See the script in the repo", CategoryArtifacts},
		{"Nothing special here", CategoryFacts},
		{"Decision: approved, but a risk remains", CategoryDecisions},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.text))
		})
	}
}

func TestBaseWeight(t *testing.T) {
	assert.InDelta(t, 1.3, BaseWeight("we decided"), 1e-9)
	assert.InDelta(t, 1.3*0.8, BaseWeight("we decided on a step by step plan"), 1e-9)
	assert.InDelta(t, 1.15*0.8*0.85, BaseWeight("thanks for the tutorial"), 1e-9)
	assert.InDelta(t, 1.0, CategoryWeight("unknown"), 1e-9)
}

func TestFilterNoise(t *testing.T) {
	chunks := []string{
		"We agreed on weekly releases.",
		"```go\nfunc main() {}\n```",
		"ROLE: senior engineer",
		"Here is the yaml config",
		"Pricing is $5 per seat.",
	}
	kept, dropped := FilterNoise(chunks)
	assert.Equal(t, []string{"We agreed on weekly releases.", "Pricing is $5 per seat."}, kept)
	assert.Equal(t, 3, dropped)
}

func TestFilterNoise_NeverEmpty(t *testing.T) {
	chunks := []string{"STRICT JSON only", "```x```"}
	kept, dropped := FilterNoise(chunks)
	assert.Equal(t, chunks, kept)
	assert.Equal(t, 0, dropped)
}

func TestIsChatter(t *testing.T) {
	assert.True(t, IsChatter("Thanks! That landing page looks great"))
	assert.False(t, IsChatter("Ship v2 on Monday"))
}

func hashCandidates(texts ...string) []Candidate {
	h := embedding.NewHashProvider()
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = h.Vector(t)
	}
	return BuildCandidates(texts, vecs)
}

func TestSelect_Empty(t *testing.T) {
	out := Select(nil, 5, 0.72, nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestSelect_SizeBound(t *testing.T) {
	texts := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		texts = append(texts, fmt.Sprintf("chunk %d about topic %d and item %d", i, i%7, i%3))
	}
	for _, n := range []int{0, 1, 5, 29, 30, 31, 40} {
		for _, k := range []int{1, 10, 30} {
			t.Run(fmt.Sprintf("n=%d,k=%d", n, k), func(t *testing.T) {
				out := Select(hashCandidates(texts[:n]...), k, 0.72, nil)
				want := n
				if k < n {
					want = k
				}
				assert.Len(t, out, want)

				seen := map[int]bool{}
				for _, s := range out {
					assert.False(t, seen[s.Index], "duplicate index %d", s.Index)
					seen[s.Index] = true
				}
			})
		}
	}
}

func TestSelect_Deterministic(t *testing.T) {
	texts := []string{
		"decided to use redis for caching",
		"redis caching decided",
		"pricing model is per seat",
		"blocked on legal review",
		"question about the onboarding flow",
		"pricing per seat confirmed",
	}
	query := embedding.NewHashProvider().Vector("redis pricing")
	a := Select(hashCandidates(texts...), 3, 0.72, query)
	b := Select(hashCandidates(texts...), 3, 0.72, query)
	assert.Equal(t, a, b)
}

func TestSelect_PrefersDiversity(t *testing.T) {
	texts := []string{
		"alpha beta gamma",
		"alpha beta gamma",
		"delta epsilon zeta",
	}
	query := embedding.NewHashProvider().Vector("alpha beta gamma delta epsilon zeta")
	out := Select(hashCandidates(texts...), 2, 0.5, query)
	require.Len(t, out, 2)
	indices := []int{out[0].Index, out[1].Index}
	assert.Contains(t, indices, 2)
}

func TestSelect_TieBreaksByPosition(t *testing.T) {
	texts := []string{"same words", "same words", "same words"}
	out := Select(hashCandidates(texts...), 1, 0.72, nil)
	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].Index)
}

func TestBudgetK(t *testing.T) {
	chunk := strings.Repeat("decision about the event store ", 120)
	texts := []string{chunk, chunk}
	per := textutil.EstimateTokens(chunk)
	require.Positive(t, per)
	assert.Equal(t, 30, BudgetK(texts, 60*per, 30))
	assert.Equal(t, 5, BudgetK(texts, 5*per, 30))
	assert.Equal(t, 1, BudgetK(texts, per/2, 30))
	assert.Equal(t, 30, BudgetK(texts, 0, 30))
	assert.Equal(t, 1, BudgetK(nil, 100, 0))
}

func TestAnchorText(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'A'
	}
	got := AnchorText("Pricing", []string{string(long)})
	assert.Len(t, []rune(got), 208)
	assert.Equal(t, "pricing ", got[:8])
	assert.Equal(t, "title ", AnchorText("Title", nil))
}

func TestTopicAnchor_KeepsOnTopic(t *testing.T) {
	chunks := []string{
		"extension pricing research for the store",
		"extension pricing tiers and research notes",
		"what to cook for dinner tonight",
	}
	res := TopicAnchor(context.Background(), embedding.NewHashProvider(), "extension pricing research", chunks,
		AnchorOptions{Thresholds: []float64{0.35, 0.32, 0.30}, MinKeep: 2, FallbackTop: 15, MaxKeep: 30})
	assert.Equal(t, chunks[:2], res.Kept)
	assert.False(t, res.Union)
	assert.Equal(t, 0.35, res.Threshold)
}

func TestTopicAnchor_UnionFallback(t *testing.T) {
	chunks := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		chunks = append(chunks, fmt.Sprintf("unrelated%d words%d here%d", i, i, i))
	}
	res := TopicAnchor(context.Background(), embedding.NewHashProvider(), "zzz", chunks,
		AnchorOptions{Thresholds: []float64{0.35, 0.32, 0.30}, MinKeep: 12, FallbackTop: 15, MaxKeep: 30})
	require.True(t, res.Union)
	assert.LessOrEqual(t, len(res.Kept), 30)
	assert.GreaterOrEqual(t, len(res.Kept), 15)

	// Source order is preserved and the most recent chunk survives
	pos := map[string]int{}
	for i, c := range chunks {
		pos[c] = i
	}
	for i := 1; i < len(res.Kept); i++ {
		assert.Less(t, pos[res.Kept[i-1]], pos[res.Kept[i]])
	}
}

type errProvider struct{}

func (errProvider) Name() string { return "err" }
func (errProvider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("down")
}

func TestTopicAnchor_EmbedFailureKeepsAll(t *testing.T) {
	chunks := []string{"a", "b"}
	res := TopicAnchor(context.Background(), errProvider{}, "t", chunks, AnchorOptions{MinKeep: 12})
	assert.Equal(t, chunks, res.Kept)
}

func TestRecallPool(t *testing.T) {
	summaries := []string{
		"extension pricing research summary",
		"thanks for the newsletter",
		"dinner plans",
		"",
		"pricing research for the extension store",
	}
	pool := RecallPool(context.Background(), embedding.NewHashProvider(), "extension pricing research", summaries, 0.32, 12)
	require.Len(t, pool, 2)
	assert.Equal(t, "extension pricing research summary", pool[0])

	assert.Empty(t, RecallPool(context.Background(), embedding.NewHashProvider(), "x", nil, 0.32, 12))
	assert.Len(t, RecallPool(context.Background(), embedding.NewHashProvider(), "extension pricing research", summaries, 0.32, 1), 1)
}
