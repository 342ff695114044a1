// Package primer turns a dense recap or raw segments into a raw PrimerBundle
// JSON document, and produces the deep-context elaboration.
package primer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/continuity-handoff/internal/llm"
	"github.com/jonathan/continuity-handoff/internal/logger"
	"github.com/jonathan/continuity-handoff/internal/prompts"
	"github.com/jonathan/continuity-handoff/internal/types"
)

const (
	continuityPrompts = prompts.Continuity
	mapReducePrompts  = prompts.MapReduce
)

// Deep-context section groups, produced by two separate calls
const (
	DeepFactsSections   = "Facts & Data; Decisions & Rationale; Constraints & Guardrails"
	DeepActionsSections = "Next Actions table; Open Questions & Assumptions; Artifacts / Snippets; Tests; Glossary & Canonical Terms"
)

// Options sizes the synthesis calls
type Options struct {
	Timeout       time.Duration
	MaxTokens     int // bundle output cap
	DeepMaxTokens int // per deep-context call
}

// OptionsForPlan returns the output caps for a plan
func OptionsForPlan(plan string, timeout time.Duration) Options {
	if plan == types.PlanVault {
		return Options{Timeout: timeout, MaxTokens: 2000, DeepMaxTokens: 1400}
	}
	return Options{Timeout: timeout, MaxTokens: 1800, DeepMaxTokens: 900}
}

// Output is a raw model response and the model that produced it
type Output struct {
	Raw   string
	Model string
}

// Synthesizer issues the primer and deep-context completions
type Synthesizer struct {
	caller *llm.Caller
	opts   Options
	log    *logger.Logger
}

// New creates a Synthesizer
func New(caller *llm.Caller, opts Options, log *logger.Logger) *Synthesizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Synthesizer{caller: caller, opts: opts, log: log}
}

// Synthesize asks for the PrimerBundle JSON built from a dense recap (or raw
// bullets on the fast path). An error means every model in the chain failed.
func (s *Synthesizer) Synthesize(ctx context.Context, title, source string) (Output, error) {
	vars := map[string]string{"Title": title, "Source": source}
	req := llm.Request{
		System:    prompts.MustGet(continuityPrompts, "primer-system"),
		Prompt:    prompts.Format(prompts.MustGet(continuityPrompts, "primer-user"), vars),
		MaxTokens: s.opts.MaxTokens,
		JSON:      true,
	}
	return s.call(ctx, llm.TierAdvanced, req, s.opts.Timeout, "primer")
}

// ReduceBundle asks for the PrimerBundle JSON built from mapped segments
func (s *Synthesizer) ReduceBundle(ctx context.Context, title string, segments []string, maxTokens int) (Output, error) {
	vars := map[string]string{"Title": title, "Segments": FormatSegments(segments)}
	req := llm.Request{
		System:    prompts.MustGet(mapReducePrompts, "reduce-bundle-system"),
		Prompt:    prompts.Format(prompts.MustGet(mapReducePrompts, "reduce-bundle-user"), vars),
		MaxTokens: maxTokens,
		JSON:      true,
	}
	return s.call(ctx, llm.TierAdvanced, req, s.opts.Timeout, "reduce bundle")
}

// DeepContext produces the detailed context from bullet lines in two calls.
// A failed call contributes nothing; both failing yields "".
func (s *Synthesizer) DeepContext(ctx context.Context, title, bullets string) string {
	vars := map[string]string{"Title": title, "Bullets": bullets}
	system := prompts.MustGet(continuityPrompts, "deep-facts-system")

	var parts []string
	for _, key := range []string{"deep-facts-user", "deep-actions-user"} {
		req := llm.Request{
			System:    system,
			Prompt:    prompts.Format(prompts.MustGet(continuityPrompts, key), vars),
			MaxTokens: s.opts.DeepMaxTokens,
		}
		out, err := s.call(ctx, llm.TierStandard, req, s.opts.Timeout, key)
		if err != nil {
			continue
		}
		if text := strings.TrimSpace(out.Raw); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ReduceDeep produces the detailed context for the map-reduce variant
func (s *Synthesizer) ReduceDeep(ctx context.Context, title string, segments []string, words string, maxTokens int) string {
	vars := map[string]string{"Title": title, "Words": words, "Segments": FormatSegments(segments)}
	req := llm.Request{
		System:    prompts.MustGet(mapReducePrompts, "reduce-deep-system"),
		Prompt:    prompts.Format(prompts.MustGet(mapReducePrompts, "reduce-deep-user"), vars),
		MaxTokens: maxTokens,
	}
	out, err := s.call(ctx, llm.TierAdvanced, req, s.opts.Timeout, "reduce deep")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out.Raw)
}

func (s *Synthesizer) call(ctx context.Context, tier llm.ModelTier, req llm.Request, timeout time.Duration, stage string) (Output, error) {
	res, err := s.caller.Call(ctx, tier, req, timeout)
	if err != nil {
		s.log.Warn("synthesis call failed", "stage", stage, "error", err.Error())
		return Output{}, fmt.Errorf("%s: %w", stage, err)
	}
	return Output{Raw: res.Content, Model: res.Model.String()}, nil
}

// FormatSegments numbers segments as "[1] text" blocks
func FormatSegments(segments []string) string {
	var sb strings.Builder
	for i, seg := range segments {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("[" + strconv.Itoa(i+1) + "] " + seg)
	}
	return sb.String()
}
