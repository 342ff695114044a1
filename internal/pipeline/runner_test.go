package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/continuity-handoff/internal/quality"
	"github.com/jonathan/continuity-handoff/internal/rendering"
	"github.com/jonathan/continuity-handoff/internal/types"
)

func TestRunner_DecisionsCarryEvidence(t *testing.T) {
	client := newTestClient(newScript())
	runner := NewRunner(testDeps(client))

	res, err := runner.Run(context.Background(), Input{JobID: "j1", Title: testTitle, Plan: types.PlanFree, Chunks: chunkTexts()}, RevisionContinuity, nil)
	require.NoError(t, err)

	assert.Equal(t, RevisionContinuity, res.Revision)
	assert.Empty(t, res.FallbackReason)
	require.NotEmpty(t, res.Bundle.Decisions)
	assert.NotEqual(t, types.Sentinel, res.Bundle.Decisions[0])
	assert.Greater(t, res.Score.EvidenceDensity, 0.0)
	assert.True(t, res.Gate.Pass, "reasons: %v", res.Gate.Reasons)
	assert.Equal(t, 1.0, res.CoverageBySource)
	assert.False(t, res.FastPath)

	assert.True(t, strings.HasPrefix(res.Text, "# "+testTitle))
	assert.Contains(t, res.Text, rendering.HeadingKeyPoints)
	assert.Contains(t, res.Text, rendering.HeadingDetailed)
	assert.Len(t, res.BundleHash, 64)
	assert.NotEmpty(t, res.Injection)

	assert.Equal(t, len(decisionChunks), callsMatching(client, markExtract))
	assert.Equal(t, 1, callsMatching(client, markCompress))
	assert.Equal(t, 0, callsMatching(client, markMapDigest))
}

func TestRunner_NoInput(t *testing.T) {
	client := newTestClient(newScript())
	runner := NewRunner(testDeps(client))
	events := &eventLog{}

	res, err := runner.Run(context.Background(), Input{JobID: "j2", Title: testTitle}, "", events.add)
	require.NoError(t, err)

	assert.Equal(t, types.NoInputResult, res.Text)
	assert.Equal(t, 0, client.CallCount())

	all := events.all()
	require.NotEmpty(t, all)
	last := all[len(all)-1]
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, types.StageFinal, last.Stage)
}

func TestRunner_BannedRecapReplaced(t *testing.T) {
	s := newScript().set(markPrimer, bundleJSON(func(b map[string]any) {
		b["context_recap"] = "As an AI, I summarized the migration."
	}))
	client := newTestClient(s)

	res, err := NewRunner(testDeps(client)).Run(context.Background(), Input{Title: testTitle, Chunks: chunkTexts()}, RevisionContinuity, nil)
	require.NoError(t, err)

	assert.Equal(t, types.Sentinel, res.Bundle.ContextRecap)
	assert.Equal(t, 1.0, res.Score.GenericScore)
	assert.NotContains(t, res.Text, "As an AI")
}

func TestRunner_OwnerSynonymMapped(t *testing.T) {
	s := newScript().set(markPrimer, bundleJSON(func(b map[string]any) {
		rows := validRows()
		rows[0]["owner"] = "dev"
		b["next_actions"] = rows
	}))
	client := newTestClient(s)

	res, err := NewRunner(testDeps(client)).Run(context.Background(), Input{Title: testTitle, Chunks: chunkTexts()}, RevisionContinuity, nil)
	require.NoError(t, err)

	require.NotEmpty(t, res.Bundle.NextActions)
	assert.Equal(t, "Engineering", res.Bundle.NextActions[0].Owner)
}

func TestRunner_GateFailureFallsBackToMapReduce(t *testing.T) {
	s := newScript().set(markPrimer, "{}")
	client := newTestClient(s)

	res, err := NewRunner(testDeps(client)).Run(context.Background(), Input{Title: testTitle, Plan: types.PlanFree, Chunks: chunkTexts()}, RevisionContinuity, nil)
	require.NoError(t, err)

	assert.Equal(t, RevisionMapReduce, res.Revision)
	assert.Equal(t, ReasonContinuityFallback, res.FallbackReason)
	assert.Positive(t, callsMatching(client, markDocRepair), "whole-document repair is tried before falling back")
	assert.Positive(t, callsMatching(client, markMapDigest))
	assert.NotEqual(t, types.Sentinel, res.Bundle.Decisions[0])
	assert.Contains(t, res.Text, rendering.HeadingKeyPoints)
}

func TestRunner_CoverageScoredAfterEnforcement(t *testing.T) {
	s := newScript().set(markPrimer, bundleJSON(func(b map[string]any) {
		for _, k := range []string{"system_instructions", "receiving_guide", "constraints", "active_work"} {
			delete(b, k)
		}
	}))
	client := newTestClient(s)

	res, err := NewRunner(testDeps(client)).Run(context.Background(), Input{Title: testTitle, Plan: types.PlanFree, Chunks: chunkTexts()}, RevisionContinuity, nil)
	require.NoError(t, err)

	assert.Equal(t, RevisionContinuity, res.Revision)
	assert.Empty(t, res.FallbackReason)
	assert.Equal(t, 1.0, res.Score.PrimerCoverage)
	assert.InDelta(t, 8.0/12.0, res.RawCoverage, 1e-9)
	assert.True(t, res.Gate.Pass, "reasons: %v", res.Gate.Reasons)
	assert.Empty(t, res.Bundle.Constraints)
}

// stalledEmbedder never answers until its context ends
type stalledEmbedder struct{}

func (stalledEmbedder) Name() string { return "stalled" }

func (stalledEmbedder) Embed(ctx context.Context, _ []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunner_StalledEmbedderStillFinishes(t *testing.T) {
	client := newTestClient(newScript())
	deps := testDeps(client)
	deps.Embedder = stalledEmbedder{}
	deps.Policy.EmbedTimeoutMS = 20

	start := time.Now()
	res, err := NewRunner(deps).Run(context.Background(), Input{Title: testTitle, Plan: types.PlanFree, Chunks: chunkTexts()}, RevisionContinuity, nil)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, RevisionContinuity, res.Revision)
	assert.NotEmpty(t, res.Text)
}

func TestRunner_DocumentRepairAdoptedWhenBetter(t *testing.T) {
	// The thin deep context fails the evidence gate; the repair adds tags
	thin := "Postgres was chosen for durability after a long discussion " + strings.Repeat("about storage options ", 80)
	repaired := "# " + testTitle + "\n\n## KEY POINTS\nPostgres chosen [C1]\n\n## DETAILED CONTEXT\n" +
		strings.Repeat("- Postgres chosen [C1]\n", 20) + "\n## CONTINUATION\n" + rendering.ContinuationCue
	s := newScript().set(markDeep, thin).set(markDocRepair, repaired)
	client := newTestClient(s)

	res, err := NewRunner(testDeps(client)).Run(context.Background(), Input{Title: testTitle, Chunks: chunkTexts()}, RevisionContinuity, nil)
	require.NoError(t, err)

	assert.True(t, res.Repaired)
	assert.Equal(t, RevisionContinuity, res.Revision)
	assert.NotContains(t, res.Text[:strings.Index(res.Text, rendering.HeadingDetailed)], "[C1]", "tags stripped from key points")
	assert.Equal(t, 1, callsMatching(client, markDocRepair))
}

func TestRunner_VariantErrorFallsBack(t *testing.T) {
	s := newScript().fail(markPrimer)
	client := newTestClient(s)

	res, err := NewRunner(testDeps(client)).Run(context.Background(), Input{Title: testTitle, Chunks: chunkTexts()}, RevisionContinuity, nil)
	require.NoError(t, err)

	assert.Equal(t, RevisionMapReduce, res.Revision)
	assert.Equal(t, ReasonVariantError, res.FallbackReason)
}

func TestRunner_AllVariantsFail(t *testing.T) {
	s := newScript().fail(markExtract, markPrimer, markMapDigest, markMapBullets, markReduceBundle)
	client := newTestClient(s)

	_, err := NewRunner(testDeps(client)).Run(context.Background(), Input{Title: testTitle, Chunks: chunkTexts()}, RevisionContinuity, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllVariantsFailed)
	assert.ErrorIs(t, err, errScripted)
}

func TestRunner_FastPathSkipsCompression(t *testing.T) {
	client := newTestClient(newScript())
	deps := testDeps(client)
	deps.Now = steppingClock(50 * time.Second)

	res, err := NewRunner(deps).Run(context.Background(), Input{Title: testTitle, Chunks: chunkTexts()}, RevisionContinuity, nil)
	require.NoError(t, err)

	assert.True(t, res.FastPath)
	assert.Equal(t, 0, callsMatching(client, markCompress))
	assert.Equal(t, 0, callsMatching(client, markDeep))

	var primerPrompt string
	for _, c := range client.Calls() {
		if strings.Contains(c.Request.System, markPrimer) {
			primerPrompt = c.Request.Prompt
		}
	}
	assert.Contains(t, primerPrompt, `"`+decisionChunks[0].quote+`"`)
	assert.Contains(t, primerPrompt, "[C1]")
}

func TestRunner_BoundedCapsDocument(t *testing.T) {
	s := newScript().set(markDeep, strings.Repeat("- Postgres chosen for durability [C1]\n", 800))
	client := newTestClient(s)
	deps := testDeps(client)
	deps.Policy.AssemblyCapTokens = 1200

	res, err := NewRunner(deps).Run(context.Background(), Input{Title: testTitle, Chunks: chunkTexts()}, RevisionBounded, nil)
	require.NoError(t, err)

	assert.Equal(t, RevisionBounded, res.Revision)
	assert.True(t, res.Trimmed)
	assert.LessOrEqual(t, res.Tokens, 1200)
}

func TestRunner_ProgressIsMonotonic(t *testing.T) {
	client := newTestClient(newScript())
	events := &eventLog{}

	_, err := NewRunner(testDeps(client)).Run(context.Background(), Input{Title: testTitle, Chunks: chunkTexts()}, RevisionContinuity, events.add)
	require.NoError(t, err)

	all := events.all()
	require.NotEmpty(t, all)
	assert.Equal(t, 5, all[0].Percent)
	prev := 0
	for _, ev := range all {
		assert.GreaterOrEqual(t, ev.Percent, prev, "step %s", ev.Step)
		prev = ev.Percent
	}
	assert.Equal(t, 100, prev)
}

func TestRunner_ForRevision(t *testing.T) {
	runner := NewRunner(testDeps(newTestClient(newScript())))

	tests := []struct {
		revision string
		want     []string
	}{
		{RevisionContinuity, []string{RevisionContinuity, RevisionMapReduce}},
		{RevisionBounded, []string{RevisionBounded, RevisionMapReduce}},
		{RevisionMapReduce, []string{RevisionMapReduce}},
		{"", []string{RevisionContinuity, RevisionMapReduce}},
		{"v3-saliency", []string{RevisionContinuity, RevisionMapReduce}},
	}
	for _, tt := range tests {
		t.Run(tt.revision, func(t *testing.T) {
			var names []string
			for _, v := range runner.ForRevision(tt.revision) {
				names = append(names, v.Name())
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestKnownRevision(t *testing.T) {
	assert.True(t, KnownRevision(""))
	assert.True(t, KnownRevision(RevisionBounded))
	assert.False(t, KnownRevision("fast60_hotfix2"))
}

func TestRunner_MapReduceOnly(t *testing.T) {
	client := newTestClient(newScript())

	res, err := NewRunner(testDeps(client)).Run(context.Background(), Input{Title: testTitle, Plan: types.PlanVault, Chunks: chunkTexts()}, RevisionMapReduce, nil)
	require.NoError(t, err)

	assert.Equal(t, RevisionMapReduce, res.Revision)
	assert.Equal(t, 0, callsMatching(client, markExtract))
	assert.Equal(t, 0, callsMatching(client, markDocRepair), "map-reduce never repairs")
	assert.Equal(t, len(decisionChunks), callsMatching(client, markMapDigest))
	assert.Equal(t, 1.0, res.CoverageBySource)
	assert.GreaterOrEqual(t, res.Score.Composite, quality.DefaultThreshold)
}
