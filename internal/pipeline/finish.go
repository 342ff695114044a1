package pipeline

import (
	"context"
	"fmt"

	"github.com/jonathan/continuity-handoff/internal/config"
	"github.com/jonathan/continuity-handoff/internal/llm"
	"github.com/jonathan/continuity-handoff/internal/pipeline/steps"
	"github.com/jonathan/continuity-handoff/internal/quality"
	"github.com/jonathan/continuity-handoff/internal/rendering"
	"github.com/jonathan/continuity-handoff/internal/repair"
	"github.com/jonathan/continuity-handoff/internal/schemas"
	"github.com/jonathan/continuity-handoff/internal/textutil"
	"github.com/jonathan/continuity-handoff/internal/types"
	"github.com/jonathan/continuity-handoff/internal/validation"
)

// draft is a variant's raw output before enforcement and assembly
type draft struct {
	raw   string
	model string
	deep  string
	// contextText grounds targeted row repairs
	contextText string
	extractive  bool
	bullets     []types.ExtractiveBullet
	capTokens   int
	allowRepair bool
}

// finish enforces, renders, scores and assembles a draft. Variants share it
// so every handoff passes through the same bundle and gate rules.
func finish(ctx context.Context, run *Run, policy config.Policy, d draft) (*Result, error) {
	in := run.Input
	log := run.Log

	if err := schemas.ValidateBundle(llm.CleanJSONBlock(d.raw)); err != nil {
		log.Debug("raw bundle failed schema audit", "error", err.Error())
	}

	enforced := repair.Enforce(d.raw, in.Title)
	if enforced.ParseError != nil {
		log.Warn("primer output was not JSON, using sentinel bundle", "error", enforced.ParseError.Error())
	}
	bundle := enforced.Bundle

	rep := repair.New(run.Caller, repair.OptionsForPlan(in.Plan, policy.MaxRepairCalls, policy.MinNextActions, config.Duration(policy.PrimerTimeoutMS)), log)
	actions := rep.EnforceNextActions(ctx, bundle.NextActions, in.Title, d.contextText)
	bundle.NextActions = actions.Rows
	run.Progress.Step(steps.StepEnforce, fmt.Sprintf("enforced bundle, %d row repairs", actions.Repairs))

	primerText, err := rendering.RenderPrimer(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to render primer: %w", err)
	}
	asm := rendering.Assemble(in.Title, primerText, d.deep, d.capTokens)

	scoreInput := quality.Input{
		Bundle:         bundle,
		Coverage:       enforced.Coverage,
		Evidence:       evidenceText(d.deep, asm.Text),
		Assembled:      asm.Text,
		Extractive:     d.extractive,
		Bullets:        d.bullets,
		ActionValidity: types.Ptr(actions.Validity),
	}
	score := quality.Score(scoreInput)
	gate := quality.Gate(score, policy.GateThreshold)

	res := &Result{
		Text:    asm.Text,
		Bundle:  bundle,
		Score:   score,
		Gate:    gate,
		Model:   d.model,
		Tokens:  asm.Tokens,
		Trimmed: asm.Trimmed,

		RawCoverage: enforced.RawCoverage,
	}

	if !gate.Pass && d.allowRepair && !run.Budget.Expired() {
		repairDocument(ctx, run, rep, policy, d, scoreInput, res)
	}
	run.Progress.Step(steps.StepScore, fmt.Sprintf("composite %.3f", res.Score.Composite))

	res.Injection = rendering.BuildInjection(bundle, policy.InjectionMaxChars)
	if iv := validation.ValidateInjection(res.Injection); !iv.Valid {
		log.Warn("injection block failed validation", "issues", iv.Issues)
	}
	res.BundleHash = textutil.CanonicalDigest(bundle)
	run.Progress.Step(steps.StepAssemble, fmt.Sprintf("assembled %d tokens", res.Tokens))

	log.Info("handoff assembled",
		"composite", res.Score.Composite,
		"raw_coverage", res.RawCoverage,
		"gate_pass", res.Gate.Pass,
		"gate_reasons", res.Gate.Reasons,
		"tokens", res.Tokens,
		"trimmed", res.Trimmed,
		"repaired", res.Repaired)
	return res, nil
}

// repairDocument makes the single whole-document repair pass and keeps the
// repaired text only when it fits the cap and scores higher
func repairDocument(ctx context.Context, run *Run, rep *repair.Repairer, policy config.Policy, d draft, scoreInput quality.Input, res *Result) {
	log := run.Log
	repaired, err := rep.RepairDocument(ctx, run.Input.Title, res.Text, res.Gate.Reasons)
	if err != nil {
		log.Warn("document repair failed", "error", err.Error())
		return
	}
	repaired = rendering.StripKeyPoints(repaired)

	tokens := textutil.EstimateTokens(repaired)
	if d.capTokens > 0 && tokens > d.capTokens {
		log.Warn("repaired document over cap, keeping original", "tokens", tokens, "cap", d.capTokens)
		return
	}

	scoreInput.Evidence = repaired
	scoreInput.Assembled = repaired
	score := quality.Score(scoreInput)
	if score.Composite <= res.Score.Composite {
		log.Info("document repair did not improve score", "before", res.Score.Composite, "after", score.Composite)
		return
	}

	res.Text = repaired
	res.Tokens = tokens
	res.Score = score
	res.Gate = quality.Gate(score, policy.GateThreshold)
	res.Repaired = true
}

// evidenceText is the text whose reference tags are counted: the detailed
// context when there is one, otherwise the whole document
func evidenceText(deep, assembled string) string {
	if deep != "" {
		return deep
	}
	return assembled
}
