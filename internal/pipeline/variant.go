// Package pipeline orchestrates the handoff variants: the selective
// continuity pipeline, its size-bounded form, and map-reduce. A Runner tries
// them in order for one input until one produces an acceptable handoff.
package pipeline

import (
	"context"
	"time"

	"github.com/jonathan/continuity-handoff/internal/config"
	"github.com/jonathan/continuity-handoff/internal/embedding"
	"github.com/jonathan/continuity-handoff/internal/llm"
	"github.com/jonathan/continuity-handoff/internal/logger"
	"github.com/jonathan/continuity-handoff/internal/types"
)

// Revisions name the variants. The revision requested on a job selects the
// first variant of its chain.
const (
	RevisionContinuity = "continuity-v1"
	RevisionMapReduce  = "mrv2"
	RevisionBounded    = "fast60"
	DefaultRevision    = RevisionContinuity
)

// Fallback reasons recorded on a result
const (
	ReasonContinuityFallback = "continuity_fallback"
	ReasonVariantError       = "variant_error"
)

// KnownRevision reports whether rev names a variant chain. "" is accepted.
func KnownRevision(rev string) bool {
	switch rev {
	case "", RevisionContinuity, RevisionMapReduce, RevisionBounded:
		return true
	}
	return false
}

// Input is one handoff request
type Input struct {
	JobID    string
	Title    string
	ThreadID string
	Plan     string
	Chunks   []string
	// Recall holds summaries of earlier checkpoints for the same thread
	Recall          []string
	CheckpointCount int
}

// Result is a finished handoff
type Result struct {
	Text     string
	Bundle   *types.PrimerBundle
	Score    types.QualityScore
	Gate     types.GateResult
	Revision string
	Model    string
	Tokens   int
	Trimmed  bool
	// CoverageBySource is the share of selected chunks that yielded evidence
	CoverageBySource float64
	// RawCoverage is the required-key coverage of the model output before
	// enforcement. The score uses the enforced coverage.
	RawCoverage      float64
	FallbackReason   string
	Repaired         bool
	FastPath         bool
	Injection        string
	BundleHash       string
}

// Run carries the per-run state shared by every stage of a variant
type Run struct {
	Input    Input
	Caller   *llm.Caller
	Budget   *Budget
	Progress *Reporter
	Log      *logger.Logger
}

// Variant is one strategy for producing a handoff from an Input
type Variant interface {
	Name() string
	Execute(ctx context.Context, run *Run) (*Result, error)
}

// Deps are the collaborators shared by all variants
type Deps struct {
	Clients map[llm.Provider]llm.Client
	// Embedder is wrapped in a hash fallback for each run
	Embedder embedding.Provider
	Policy   config.Policy
	Log      *logger.Logger
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Embedder == nil {
		d.Embedder = embedding.NewHashProvider()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	d.Policy = d.Policy.MergeWithDefaults(config.DefaultPolicy())
	return d
}
