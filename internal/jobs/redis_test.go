package jobs

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/continuity-handoff/internal/types"
)

func TestRedisCache_Integration(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	rdb, err := ConnectRedis(ctx, url)
	require.NoError(t, err)
	defer rdb.Close()

	inner := NewMemoryStore(0)
	c := NewRedisCache(inner, rdb, time.Minute, nil)
	job := &types.Job{ID: uuid.New(), Stage: types.StageMapping, Status: types.StatusRunning}
	require.NoError(t, c.CreateJob(ctx, job))
	defer rdb.Del(ctx, statusKeyPrefix+job.ID.String())

	_, err = c.UpdateJob(ctx, job.ID, types.JobUpdate{Percent: types.Ptr(60), Stage: types.Ptr(types.StageReduce)})
	require.NoError(t, err)

	got, err := c.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Percent)
	assert.Equal(t, types.StageReduce, got.Stage)

	_, err = c.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}
