package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/continuity-handoff/internal/jobs"
	"github.com/jonathan/continuity-handoff/internal/types"
)

func setupTestDB(t *testing.T) *DB {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := Connect(ctx, dbURL)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to DB: %v", err)
	}
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestJobLifecycle_Integration(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	job := &types.Job{
		ID:        uuid.New(),
		ThreadID:  "thread-" + uuid.NewString(),
		Title:     "Event store migration",
		Plan:      types.PlanFree,
		Stage:     types.StageMapping,
		Status:    types.StatusRunning,
		Percent:   5,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.CreateJob(ctx, job))

	got, err := db.UpdateJob(ctx, job.ID, types.JobUpdate{
		Stage:       types.Ptr(types.StageFinal),
		Status:      types.Ptr(types.StatusDone),
		Percent:     types.Ptr(100),
		Result:      types.Ptr("# Handoff"),
		GateReasons: []string{"coverage"},
		Score:       &types.QualityScore{Composite: 0.92},
	})
	require.NoError(t, err)
	assert.Equal(t, 100, got.Percent)

	read, err := db.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, read.Status)
	assert.Equal(t, "# Handoff", read.Result)
	assert.Equal(t, []string{"coverage"}, read.GateReasons)
	assert.InDelta(t, 0.92, read.ContinuityScore, 1e-9)

	_, err = db.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
	_, err = db.UpdateJob(ctx, uuid.New(), types.JobUpdate{})
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestCheckpoints_Integration(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	thread := "thread-" + uuid.NewString()

	next, err := db.NextCheckpointNumber(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	for n := 1; n <= 3; n++ {
		require.NoError(t, db.SaveCheckpoint(ctx, &types.Checkpoint{
			ThreadID:         thread,
			CheckpointNumber: n,
			QuickSummary:     "summary",
			ContentHash:      "h",
			CreatedAt:        time.Now().UTC(),
		}))
	}
	require.NoError(t, db.SaveCheckpoint(ctx, &types.Checkpoint{
		ThreadID: thread, CheckpointNumber: 3, QuickSummary: "replaced", ContentHash: "h", CreatedAt: time.Now().UTC(),
	}))

	count, err := db.CountCheckpoints(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	list, err := db.ListCheckpoints(ctx, thread, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 3, list[0].CheckpointNumber)
	assert.Equal(t, "replaced", list[0].QuickSummary)
}
