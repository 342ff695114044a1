package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/continuity-handoff/internal/config"
	"github.com/jonathan/continuity-handoff/internal/llm"
	"github.com/jonathan/continuity-handoff/internal/logger"
	"github.com/jonathan/continuity-handoff/internal/pipeline/steps"
	"github.com/jonathan/continuity-handoff/internal/primer"
	"github.com/jonathan/continuity-handoff/internal/prompts"
	"github.com/jonathan/continuity-handoff/internal/types"
	"github.com/jonathan/continuity-handoff/internal/validation"
)

const (
	mapPromptFile      = prompts.MapReduce
	mapDigestMaxTokens = 640
	mapBulletMaxTokens = 480
	// a usable map has at least this many bullet lines and characters
	mapMinBullets = 3
	mapMinChars   = 120
	// maps with fewer alphanumerics are discarded before reduce
	mapMinAlnum = 60
)

// MapReduceVariant digests every chunk group independently, then reduces the
// digests into a bundle and a detailed context. It never repairs on gate
// failure; it is the last resort of every chain.
type MapReduceVariant struct {
	deps Deps
}

// NewMapReduceVariant creates the mrv2 variant
func NewMapReduceVariant(deps Deps) *MapReduceVariant {
	return &MapReduceVariant{deps: deps.withDefaults()}
}

// Name returns the variant's revision tag
func (v *MapReduceVariant) Name() string {
	return RevisionMapReduce
}

// Execute runs the variant. Only a failed bundle reduce is an error.
func (v *MapReduceVariant) Execute(ctx context.Context, run *Run) (*Result, error) {
	p := v.deps.Policy
	in := run.Input
	log := run.Log.With("variant", v.Name())

	groups := Coalesce(in.Chunks)
	maps := make([]string, len(groups))
	var done atomic.Int32

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(MapConcurrency(in.Plan, p.MapConcurrency))
	for i, group := range groups {
		g.Go(func() error {
			maps[i] = v.mapSegment(gCtx, run, group, log)
			run.Progress.Chunks(steps.StepMap, int(done.Add(1)), len(groups))
			return nil // a failed map never fails the phase
		})
	}
	_ = g.Wait()

	segments := UsableMaps(maps)
	if len(segments) == 0 {
		log.Warn("every map was empty, reducing over raw chunks")
		segments = rawSegments(in.Chunks)
	}
	run.Progress.Step(steps.StepMap, fmt.Sprintf("mapped %d groups, %d usable", len(groups), len(segments)))

	budget := ReduceBudgetFor(in.Plan)
	syn := primer.New(run.Caller, primer.OptionsForPlan(in.Plan, config.Duration(p.PrimerTimeoutMS)), log)
	out, err := syn.ReduceBundle(ctx, in.Title, segments, budget.BundleMax)
	if err != nil {
		return nil, fmt.Errorf("reduce failed: %w", err)
	}
	deep := syn.ReduceDeep(ctx, in.Title, segments, budget.DeepWords, budget.DeepMax)
	run.Progress.Step(steps.StepReduce, "reduced segments")

	res, err := finish(ctx, run, p, draft{
		raw:         out.Raw,
		model:       out.Model,
		deep:        deep,
		contextText: strings.Join(segments, "\n"),
		extractive:  false,
	})
	if err != nil {
		return nil, err
	}
	if len(groups) > 0 {
		res.CoverageBySource = float64(countUsable(maps)) / float64(len(groups))
	}
	return res, nil
}

// mapSegment digests one chunk group: a JSON digest first, a bullet prompt
// when the digest is unusable. Returns "" when both fail.
func (v *MapReduceVariant) mapSegment(ctx context.Context, run *Run, segment string, log *logger.Logger) string {
	if found := validation.ScanInstructions(segment); len(found) > 0 {
		log.Warn("segment contains instruction-like text", "phrases", found)
	}
	quoted := validation.QuoteConversation("segment", segment)
	timeout := config.Duration(v.deps.Policy.PrimerTimeoutMS)

	req := llm.Request{
		Prompt:    llm.BuildExtractionPrompt(llm.MapDigestSchema(), quoted),
		MaxTokens: mapDigestMaxTokens,
		JSON:      true,
	}
	if res, err := run.Caller.Call(ctx, llm.TierLite, req, timeout); err == nil {
		if text := DigestBullets(res.Content); MapOK(text) {
			return text
		}
	}

	req = llm.Request{
		System:    prompts.MustGet(mapPromptFile, "map-bullets-system"),
		Prompt:    prompts.Format(prompts.MustGet(mapPromptFile, "map-bullets-user"), map[string]string{"Segment": quoted}),
		MaxTokens: mapBulletMaxTokens,
	}
	res, err := run.Caller.Call(ctx, llm.TierLite, req, timeout)
	if err != nil {
		log.Debug("map failed", "error", err.Error())
		return ""
	}
	return strings.TrimSpace(res.Content)
}

// Coalesce joins neighbouring chunks so long conversations need fewer map
// calls: groups of 4 above 140 chunks, 3 above 100, 2 above 60.
func Coalesce(chunks []string) []string {
	size := 1
	switch n := len(chunks); {
	case n > 140:
		size = 4
	case n > 100:
		size = 3
	case n > 60:
		size = 2
	}
	if size == 1 {
		return chunks
	}
	out := make([]string, 0, (len(chunks)+size-1)/size)
	for i := 0; i < len(chunks); i += size {
		end := min(i+size, len(chunks))
		out = append(out, strings.Join(chunks[i:end], "\n\n"))
	}
	return out
}

// MapConcurrency clamps the configured map concurrency to the plan's range
func MapConcurrency(plan string, configured int) int {
	hi := 15
	if plan == types.PlanVault {
		hi = 30
	}
	return max(1, min(configured, hi))
}

// ReduceBudget sizes the reduce calls
type ReduceBudget struct {
	Max       int
	BundleMax int
	DeepMax   int
	DeepWords string
}

// ReduceBudgetFor returns the reduce sizes for a plan
func ReduceBudgetFor(plan string) ReduceBudget {
	b := ReduceBudget{Max: 1400, DeepWords: "500-800"}
	if plan == types.PlanVault {
		b = ReduceBudget{Max: 3200, DeepWords: "900-1300"}
	}
	b.BundleMax = min(1200, int(0.45*float64(b.Max)))
	b.DeepMax = min(2200, int(0.8*float64(b.Max)))
	return b
}

// mapDigest is the JSON shape requested by the digest prompt
type mapDigest struct {
	Objectives  []string          `json:"objectives"`
	Facts       []string          `json:"facts"`
	Decisions   []string          `json:"decisions"`
	Risks       []string          `json:"risks"`
	NextActions []string          `json:"next_actions"`
	Terms       map[string]string `json:"terms"`
}

// DigestBullets renders a JSON map digest as labelled bullet lines.
// Output that is not a digest yields "".
func DigestBullets(raw string) string {
	var d mapDigest
	if err := json.Unmarshal([]byte(llm.CleanJSONBlock(raw)), &d); err != nil {
		return ""
	}

	var lines []string
	add := func(label string, items []string) {
		for _, item := range items {
			if item = strings.TrimSpace(item); item != "" {
				lines = append(lines, "- "+label+": "+item)
			}
		}
	}
	add("Objective", d.Objectives)
	add("Fact", d.Facts)
	add("Decision", d.Decisions)
	add("Risk", d.Risks)
	add("Next", d.NextActions)

	terms := make([]string, 0, len(d.Terms))
	for k := range d.Terms {
		terms = append(terms, k)
	}
	sort.Strings(terms)
	for _, k := range terms {
		if def := strings.TrimSpace(d.Terms[k]); def != "" {
			lines = append(lines, "- Term: "+k+" = "+def)
		}
	}
	return strings.Join(lines, "\n")
}

// MapOK reports whether a map has enough bullet lines and text to keep
func MapOK(text string) bool {
	if len(text) <= mapMinChars {
		return false
	}
	bullets := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "•") || strings.HasPrefix(line, "*") {
			bullets++
		}
	}
	return bullets >= mapMinBullets
}

// UsableMaps drops empty, thin and placeholder maps
func UsableMaps(maps []string) []string {
	out := make([]string, 0, len(maps))
	for _, m := range maps {
		if usableMap(m) {
			out = append(out, strings.TrimSpace(m))
		}
	}
	return out
}

func countUsable(maps []string) int {
	n := 0
	for _, m := range maps {
		if usableMap(m) {
			n++
		}
	}
	return n
}

func usableMap(m string) bool {
	if strings.Contains(strings.ToLower(m), "map segment") {
		return false
	}
	alnum := 0
	for _, r := range m {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	return alnum >= mapMinAlnum
}
