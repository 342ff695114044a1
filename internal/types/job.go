package types

import (
	"time"

	"github.com/google/uuid"
)

// Job stages
const (
	StageMapping = "mapping"
	StageReduce  = "reduce"
	StageFinal   = "final"
)

// Job statuses
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Plans
const (
	PlanFree  = "free"
	PlanVault = "vault"
)

// NoInputResult is the terminal result of a job started with zero chunks
const NoInputResult = "(no input)"

// Job is the persisted record of one pipeline run
type Job struct {
	ID               uuid.UUID `json:"id"`
	UserID           string    `json:"user_id,omitempty"`
	ThreadID         string    `json:"thread_id"`
	Title            string    `json:"title"`
	Plan             string    `json:"plan"`
	Revision         string    `json:"zt_rev,omitempty"`
	Stage            string    `json:"stage"`
	Status           string    `json:"status"`
	Percent          int       `json:"percent"`
	TotalChunks      int       `json:"total_chunks"`
	ProcessedChunks  int       `json:"processed_chunks"`
	Result           string    `json:"result,omitempty"`
	Model            string    `json:"model,omitempty"`
	TokenEstimate    int       `json:"token_estimate"`
	CheckpointCount  int       `json:"checkpoint_count"`
	ContinuityScore  float64   `json:"continuity_score"`
	ActionValidity   float64   `json:"action_validity"`
	EvidenceDensity  float64   `json:"evidence_density"`
	PrimerCoverage   float64   `json:"primer_coverage"`
	CoverageBySource float64   `json:"coverage_by_source"`
	FallbackReason   string    `json:"fallback_reason,omitempty"`
	GateReasons      []string  `json:"gate_reasons,omitempty"`
	BundleHash       string    `json:"bundle_hash,omitempty"`
	Trimmed          bool      `json:"trimmed"`
	Injection        string    `json:"injection,omitempty"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasResult reports whether the job carries a non-empty result
func (j *Job) HasResult() bool {
	return j != nil && j.Result != ""
}

// JobUpdate is a partial update of a Job. Nil fields are left unchanged.
type JobUpdate struct {
	Stage            *string
	Status           *string
	Percent          *int
	TotalChunks      *int
	ProcessedChunks  *int
	Result           *string
	Model            *string
	Revision         *string
	TokenEstimate    *int
	CheckpointCount  *int
	Score            *QualityScore
	CoverageBySource *float64
	FallbackReason   *string
	GateReasons      []string
	BundleHash       *string
	Trimmed          *bool
	Injection        *string
	Error            *string
}

// Apply merges u into j. Percent never moves backwards.
func (u JobUpdate) Apply(j *Job) {
	if u.Stage != nil {
		j.Stage = *u.Stage
	}
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.Percent != nil && *u.Percent > j.Percent {
		j.Percent = *u.Percent
	}
	if u.TotalChunks != nil {
		j.TotalChunks = *u.TotalChunks
	}
	if u.ProcessedChunks != nil {
		j.ProcessedChunks = *u.ProcessedChunks
	}
	if u.Result != nil {
		j.Result = *u.Result
	}
	if u.Model != nil {
		j.Model = *u.Model
	}
	if u.Revision != nil {
		j.Revision = *u.Revision
	}
	if u.TokenEstimate != nil {
		j.TokenEstimate = *u.TokenEstimate
	}
	if u.CheckpointCount != nil {
		j.CheckpointCount = *u.CheckpointCount
	}
	if u.Score != nil {
		j.ContinuityScore = u.Score.Composite
		j.ActionValidity = u.Score.ActionValidity
		j.EvidenceDensity = u.Score.EvidenceDensity
		j.PrimerCoverage = u.Score.PrimerCoverage
	}
	if u.CoverageBySource != nil {
		j.CoverageBySource = *u.CoverageBySource
	}
	if u.FallbackReason != nil {
		j.FallbackReason = *u.FallbackReason
	}
	if u.GateReasons != nil {
		j.GateReasons = u.GateReasons
	}
	if u.BundleHash != nil {
		j.BundleHash = *u.BundleHash
	}
	if u.Trimmed != nil {
		j.Trimmed = *u.Trimmed
	}
	if u.Injection != nil {
		j.Injection = *u.Injection
	}
	if u.Error != nil {
		j.Error = *u.Error
	}
	j.UpdatedAt = time.Now()
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}
