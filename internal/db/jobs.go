package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/continuity-handoff/internal/jobs"
	"github.com/jonathan/continuity-handoff/internal/types"
)

// -----------------------------------------------------------------------------
// Job Methods (implements jobs.Store)
// -----------------------------------------------------------------------------

const jobColumns = `id, user_id, thread_id, title, plan, zt_rev, stage, status, percent,
	total_chunks, processed_chunks, result, model, token_estimate, checkpoint_count,
	continuity_score, action_validity, evidence_density, primer_coverage, coverage_by_source,
	fallback_reason, gate_reasons, bundle_hash, trimmed, injection, error, created_at, updated_at`

// CreateJob inserts a new job record
func (db *DB) CreateJob(ctx context.Context, job *types.Job) error {
	reasons, err := json.Marshal(job.GateReasons)
	if err != nil {
		return fmt.Errorf("failed to marshal gate reasons: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO handoff_jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		         $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`,
		job.ID, job.UserID, job.ThreadID, job.Title, job.Plan, job.Revision, job.Stage, job.Status, job.Percent,
		job.TotalChunks, job.ProcessedChunks, job.Result, job.Model, job.TokenEstimate, job.CheckpointCount,
		job.ContinuityScore, job.ActionValidity, job.EvidenceDensity, job.PrimerCoverage, job.CoverageBySource,
		job.FallbackReason, reasons, job.BundleHash, job.Trimmed, job.Injection, job.Error, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	job, err := scanJob(db.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM handoff_jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// UpdateJob applies u under a row lock and returns the updated job
func (db *DB) UpdateJob(ctx context.Context, id uuid.UUID, u types.JobUpdate) (*types.Job, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	job, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM handoff_jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to lock job: %w", err)
	}
	u.Apply(job)

	reasons, err := json.Marshal(job.GateReasons)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gate reasons: %w", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE handoff_jobs SET
		   zt_rev = $2, stage = $3, status = $4, percent = $5, total_chunks = $6,
		   processed_chunks = $7, result = $8, model = $9, token_estimate = $10,
		   checkpoint_count = $11, continuity_score = $12, action_validity = $13,
		   evidence_density = $14, primer_coverage = $15, coverage_by_source = $16,
		   fallback_reason = $17, gate_reasons = $18, bundle_hash = $19, trimmed = $20,
		   injection = $21, error = $22, updated_at = NOW()
		 WHERE id = $1`,
		id, job.Revision, job.Stage, job.Status, job.Percent, job.TotalChunks,
		job.ProcessedChunks, job.Result, job.Model, job.TokenEstimate,
		job.CheckpointCount, job.ContinuityScore, job.ActionValidity,
		job.EvidenceDensity, job.PrimerCoverage, job.CoverageBySource,
		job.FallbackReason, reasons, job.BundleHash, job.Trimmed,
		job.Injection, job.Error,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit job update: %w", err)
	}
	return job, nil
}

func scanJob(row pgx.Row) (*types.Job, error) {
	var job types.Job
	var reasons []byte
	err := row.Scan(&job.ID, &job.UserID, &job.ThreadID, &job.Title, &job.Plan, &job.Revision,
		&job.Stage, &job.Status, &job.Percent, &job.TotalChunks, &job.ProcessedChunks,
		&job.Result, &job.Model, &job.TokenEstimate, &job.CheckpointCount,
		&job.ContinuityScore, &job.ActionValidity, &job.EvidenceDensity, &job.PrimerCoverage,
		&job.CoverageBySource, &job.FallbackReason, &reasons, &job.BundleHash, &job.Trimmed,
		&job.Injection, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(reasons) > 0 {
		_ = json.Unmarshal(reasons, &job.GateReasons)
	}
	return &job, nil
}
