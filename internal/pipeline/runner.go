package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/continuity-handoff/internal/config"
	"github.com/jonathan/continuity-handoff/internal/llm"
	"github.com/jonathan/continuity-handoff/internal/pipeline/steps"
	"github.com/jonathan/continuity-handoff/internal/types"
)

// ErrAllVariantsFailed is returned when no variant in the chain produced a result
var ErrAllVariantsFailed = errors.New("all pipeline variants failed")

// Runner executes a revision's variant chain for one input at a time.
// A Runner is safe for concurrent use; each Run gets its own Caller, so
// concurrent runs never share backoff state.
type Runner struct {
	deps   Deps
	chains map[string][]Variant
}

// NewRunner creates a Runner with the standard chains:
// continuity-v1 and fast60 fall back to mrv2; mrv2 stands alone.
func NewRunner(deps Deps) *Runner {
	deps = deps.withDefaults()
	continuity := NewContinuityVariant(deps)
	bounded := NewBoundedVariant(deps)
	mapReduce := NewMapReduceVariant(deps)
	return &Runner{
		deps: deps,
		chains: map[string][]Variant{
			RevisionContinuity: {continuity, mapReduce},
			RevisionBounded:    {bounded, mapReduce},
			RevisionMapReduce:  {mapReduce},
		},
	}
}

// Policy returns the merged policy the runner uses
func (r *Runner) Policy() config.Policy {
	return r.deps.Policy
}

// ForRevision returns the variant chain for a revision. Unknown or empty
// revisions get the default chain.
func (r *Runner) ForRevision(revision string) []Variant {
	if chain, ok := r.chains[revision]; ok {
		return chain
	}
	return r.chains[DefaultRevision]
}

// Run produces a handoff for in. Variants are tried in order: an error moves
// to the next one, and so does a gate failure while another variant remains.
// The last variant's result is accepted as is. Zero chunks short-circuit to
// the "(no input)" result without any completion call.
func (r *Runner) Run(ctx context.Context, in Input, revision string, onProgress ProgressCallback) (*Result, error) {
	if revision == "" || r.chains[revision] == nil {
		revision = DefaultRevision
	}
	log := r.deps.Log.With("job_id", in.JobID, "revision", revision)
	progress := NewReporter(onProgress, log)
	progress.Step(steps.StepStart, fmt.Sprintf("received %d chunks", len(in.Chunks)))

	if len(in.Chunks) == 0 {
		progress.Step(steps.StepFinal, types.NoInputResult)
		return &Result{Text: types.NoInputResult, Revision: revision}, nil
	}

	run := &Run{
		Input:    in,
		Caller:   llm.NewCaller(r.deps.Clients, r.modelConfig(in.Plan), log),
		Budget:   NewBudget(r.deps.Now, config.Duration(r.deps.Policy.BudgetMS), config.Duration(r.deps.Policy.FastPathMS)),
		Progress: progress,
		Log:      log,
	}

	if !run.Caller.Available(llm.TierAdvanced) {
		log.Warn("no primer model is configured, bundles will fall back to sentinels")
	}

	chain := r.ForRevision(revision)
	var (
		errs    []error
		pending *Result
		reason  string
	)
	for i, v := range chain {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		progress.Begin(v.Name())
		log.Info("running variant", "variant", v.Name(), "remaining_ms", run.Budget.Remaining().Milliseconds())

		res, err := v.Execute(ctx, run)
		if err != nil {
			log.Warn("variant failed", "variant", v.Name(), "reason", ReasonVariantError,
				"primer_done", progress.done(steps.StepPrimer), "error", err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", v.Name(), err))
			if reason == "" {
				reason = ReasonVariantError
			}
			continue
		}
		res.Revision = v.Name()

		if res.Gate.Pass || i == len(chain)-1 {
			res.FallbackReason = reason
			progress.Step(steps.StepFinal, "handoff ready")
			return res, nil
		}

		log.Warn("quality gate failed, falling back",
			"variant", v.Name(),
			"reason", ReasonContinuityFallback,
			"composite", res.Score.Composite,
			"gate_reasons", res.Gate.Reasons)
		pending = res
		reason = ReasonContinuityFallback
	}

	if pending != nil {
		pending.FallbackReason = ReasonContinuityFallback
		progress.Step(steps.StepFinal, "handoff ready")
		return pending, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrAllVariantsFailed, errors.Join(errs...))
}

// modelConfig returns the plan's chains restricted to configured providers
func (r *Runner) modelConfig(plan string) *llm.Config {
	available := make(map[llm.Provider]bool, len(r.deps.Clients))
	for p := range r.deps.Clients {
		available[p] = true
	}
	return llm.DefaultConfig(plan).Restrict(available)
}
