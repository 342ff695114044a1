package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/continuity-handoff/internal/compress"
	"github.com/jonathan/continuity-handoff/internal/config"
	"github.com/jonathan/continuity-handoff/internal/embedding"
	"github.com/jonathan/continuity-handoff/internal/extract"
	"github.com/jonathan/continuity-handoff/internal/logger"
	"github.com/jonathan/continuity-handoff/internal/pipeline/steps"
	"github.com/jonathan/continuity-handoff/internal/primer"
	"github.com/jonathan/continuity-handoff/internal/selection"
	"github.com/jonathan/continuity-handoff/internal/textutil"
	"github.com/jonathan/continuity-handoff/internal/types"
)

// rawSourceChunks and rawSourceChars bound the raw text used when the
// extractive pass yields nothing
const (
	rawSourceChunks = 8
	rawSourceChars  = 1000
)

// ContinuityVariant is the selective pipeline: filter, anchor, select,
// extract, compress, synthesize. In bounded mode selection is sized from a
// token budget and the assembled document is capped.
type ContinuityVariant struct {
	deps    Deps
	bounded bool
}

// NewContinuityVariant creates the continuity-v1 variant
func NewContinuityVariant(deps Deps) *ContinuityVariant {
	return &ContinuityVariant{deps: deps.withDefaults()}
}

// NewBoundedVariant creates the size-bounded fast60 variant
func NewBoundedVariant(deps Deps) *ContinuityVariant {
	return &ContinuityVariant{deps: deps.withDefaults(), bounded: true}
}

// Name returns the variant's revision tag
func (v *ContinuityVariant) Name() string {
	if v.bounded {
		return RevisionBounded
	}
	return RevisionContinuity
}

// Execute runs the variant. Only a primer synthesis failure is an error.
func (v *ContinuityVariant) Execute(ctx context.Context, run *Run) (*Result, error) {
	p := v.deps.Policy
	in := run.Input
	log := run.Log.With("variant", v.Name())
	// all vectors within one run share a dimension
	embedder := embedding.NewFallbackProvider(v.deps.Embedder, config.Duration(p.EmbedTimeoutMS), log)

	selected := v.selectChunks(ctx, in, embedder, log)
	run.Progress.Step(steps.StepSelect, fmt.Sprintf("selected %d of %d chunks", len(selected), len(in.Chunks)))
	log.Info("chunks selected", "selected", len(selected), "total", len(in.Chunks), "embedder", embedder.Name(), "embedding_degraded", embedder.Degraded())

	ex := extract.New(run.Caller, extract.Options{
		Concurrency: p.ExtractConcurrency,
		Timeout:     config.Duration(p.ExtractTimeoutMS),
		Quota:       p.EvidenceQuota,
	}, log)
	batch := ex.Run(ctx, selected, 1, func(done, total int) {
		run.Progress.Chunks(steps.StepExtract, done, total)
	})
	covered := batch.Covered()

	if len(batch.Bullets) < p.EvidenceQuota && len(in.Recall) > 0 {
		pool := selection.RecallPool(ctx, embedder, in.Title, in.Recall, p.RecallThreshold, p.RecallPoolSize)
		var used int
		batch, used = ex.Backfill(ctx, batch, pool)
		log.Info("backfilled from recall pool", "pool", len(pool), "used", used, "bullets", len(batch.Bullets))
	}
	run.Progress.Step(steps.StepExtract, fmt.Sprintf("extracted %d bullets", len(batch.Bullets)))

	syn := primer.New(run.Caller, primer.OptionsForPlan(in.Plan, config.Duration(p.PrimerTimeoutMS)), log)

	var source, deep string
	fastPath := run.Budget.FastPath()
	switch {
	case len(batch.Bullets) == 0:
		log.Warn("extractive pass produced no bullets, synthesizing from raw chunks")
		source = primer.FormatSegments(rawSegments(selected))
	case fastPath:
		log.Warn("budget fast path, skipping compression", "elapsed_ms", run.Budget.Elapsed().Milliseconds())
		source = fastPathSource(batch.Bullets, p.FastPathBullets)
		deep = compress.FormatBullets(batch.Bullets)
	default:
		comp := compress.New(run.Caller, compress.Options{
			MaxTokens:     p.CompressMaxTokens,
			TargetTokens:  p.CompressTargetTokens,
			CeilingTokens: p.CompressCeilingTokens,
			DropRatio:     p.CompressDropRatio,
			Timeout:       config.Duration(p.CompressTimeoutMS),
		}, log)
		recap := comp.Compress(ctx, batch.Bullets, in.Title)
		run.Progress.Step(steps.StepCompress, fmt.Sprintf("recap %d tokens in %d passes", recap.Tokens, recap.Passes))
		source = recap.Recap
	}

	out, err := syn.Synthesize(ctx, in.Title, source)
	if err != nil {
		return nil, fmt.Errorf("primer synthesis failed: %w", err)
	}
	if deep == "" && len(batch.Bullets) > 0 {
		deep = syn.DeepContext(ctx, in.Title, compress.FormatBullets(batch.Bullets))
	}
	run.Progress.Step(steps.StepPrimer, "primer synthesized")

	capTokens := 0
	if v.bounded {
		capTokens = p.AssemblyCapTokens
	}
	res, err := finish(ctx, run, p, draft{
		raw:         out.Raw,
		model:       out.Model,
		deep:        deep,
		contextText: source,
		extractive:  true,
		bullets:     batch.Bullets,
		capTokens:   capTokens,
		allowRepair: true,
	})
	if err != nil {
		return nil, err
	}
	if len(selected) > 0 {
		res.CoverageBySource = float64(covered) / float64(len(selected))
	}
	res.FastPath = fastPath
	return res, nil
}

// selectChunks applies the noise filter and topic anchor, then picks a
// diverse subset with MMR. The subset keeps source order.
func (v *ContinuityVariant) selectChunks(ctx context.Context, in Input, embedder embedding.Provider, log *logger.Logger) []string {
	p := v.deps.Policy
	chunks := in.Chunks

	if !p.DisableNoiseFilter {
		var dropped int
		chunks, dropped = selection.FilterNoise(chunks)
		if dropped > 0 {
			log.Debug("dropped noise chunks", "dropped", dropped)
		}
	}
	if !p.DisableTopicAnchor {
		anchored := selection.TopicAnchor(ctx, embedder, in.Title, chunks, selection.AnchorOptions{
			Thresholds:  p.AnchorThresholds,
			MinKeep:     p.AnchorMinKeep,
			FallbackTop: p.AnchorFallbackTop,
			MaxKeep:     p.AnchorMaxKeep,
		})
		log.Debug("topic anchor applied", "kept", len(anchored.Kept), "threshold", anchored.Threshold, "union", anchored.Union)
		chunks = anchored.Kept
	}

	k := p.SelectionK
	if v.bounded {
		k = selection.BudgetK(chunks, p.SelectionTokenBudget, p.SelectionK)
	}
	if len(chunks) <= k {
		return chunks
	}

	vectors, err := embedder.Embed(ctx, chunks)
	if err != nil || len(vectors) != len(chunks) {
		log.Warn("embedding failed, keeping earliest chunks", "error", fmt.Sprint(err))
		return chunks[:k]
	}
	picked := selection.Select(selection.BuildCandidates(chunks, vectors), k, p.MMRLambda, nil)
	sort.Slice(picked, func(a, b int) bool { return picked[a].Index < picked[b].Index })

	out := make([]string, len(picked))
	for i, s := range picked {
		out[i] = s.Text
	}
	return out
}

// fastPathSource renders the first n bullets as primer input without a
// compression call
func fastPathSource(bullets []types.ExtractiveBullet, n int) string {
	if n > 0 && len(bullets) > n {
		bullets = bullets[:n]
	}
	lines := make([]string, 0, len(bullets))
	for _, b := range bullets {
		line := b.Text
		if b.Quote != "" {
			line += fmt.Sprintf(" %q", b.Quote)
		}
		lines = append(lines, line+" "+b.SourceID)
	}
	return strings.Join(lines, "\n")
}

// rawSegments returns the heads of the first chunks, used when no bullets or
// map digests are available
func rawSegments(chunks []string) []string {
	if len(chunks) > rawSourceChunks {
		chunks = chunks[:rawSourceChunks]
	}
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = textutil.TruncateRunes(strings.TrimSpace(c), rawSourceChars)
	}
	return out
}
