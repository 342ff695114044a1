// Package jobs runs handoff pipelines in the background and records their
// progress in a job store that clients poll.
package jobs

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jonathan/continuity-handoff/internal/types"
)

var (
	// ErrJobNotFound is returned for an unknown job id
	ErrJobNotFound = errors.New("job not found")
	// ErrResultTimeout is returned when a blocking result fetch gives up.
	// The job may still finish; it is not a pipeline failure.
	ErrResultTimeout = errors.New("timed out waiting for job result")
	// ErrJobFailed is returned by a blocking fetch for a failed job
	ErrJobFailed = errors.New("job failed")
	// ErrInvalidCheckpoint is returned for a checkpoint without content
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
	// ErrCheckpointsUnavailable is returned when no checkpoint store is configured
	ErrCheckpointsUnavailable = errors.New("checkpoint store not configured")
)

// Store persists job records. UpdateJob returns the record after the update.
type Store interface {
	CreateJob(ctx context.Context, job *types.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error)
	UpdateJob(ctx context.Context, id uuid.UUID, u types.JobUpdate) (*types.Job, error)
}

// CheckpointStore persists checkpoints, the recall pool of a thread
type CheckpointStore interface {
	NextCheckpointNumber(ctx context.Context, threadID string) (int, error)
	// SaveCheckpoint inserts cp, replacing an existing checkpoint with the
	// same thread and number
	SaveCheckpoint(ctx context.Context, cp *types.Checkpoint) error
	// ListCheckpoints returns up to limit checkpoints, newest first
	ListCheckpoints(ctx context.Context, threadID string, limit int) ([]types.Checkpoint, error)
	CountCheckpoints(ctx context.Context, threadID string) (int, error)
}
