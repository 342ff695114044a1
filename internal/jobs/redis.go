package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jonathan/continuity-handoff/internal/logger"
	"github.com/jonathan/continuity-handoff/internal/types"
)

// DefaultStatusTTL bounds how long a job's hot status stays in Redis
const DefaultStatusTTL = 2 * time.Hour

const statusKeyPrefix = "handoff:job:"

// ConnectRedis parses a redis:// URL (or a bare host:port) and pings the server
func ConnectRedis(ctx context.Context, url string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		opt = &goredis.Options{Addr: url, DialTimeout: 5 * time.Second}
	}
	rdb := goredis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisCache fronts a Store with a Redis copy of each job so that high
// frequency pollers, possibly on other instances, read status without
// touching the backing store. Redis errors are logged and never fail a call.
type RedisCache struct {
	inner Store
	rdb   *goredis.Client
	ttl   time.Duration
	log   *logger.Logger
}

// NewRedisCache wraps inner. ttl defaults to DefaultStatusTTL.
func NewRedisCache(inner Store, rdb *goredis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisCache{inner: inner, rdb: rdb, ttl: ttl, log: log.With("service", "RedisJobCache")}
}

// CreateJob creates the job in the backing store and caches it
func (c *RedisCache) CreateJob(ctx context.Context, job *types.Job) error {
	if err := c.inner.CreateJob(ctx, job); err != nil {
		return err
	}
	c.put(ctx, job)
	return nil
}

// GetJob reads the cached copy, falling back to the backing store
func (c *RedisCache) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	raw, err := c.rdb.Get(ctx, statusKeyPrefix+id.String()).Bytes()
	if err == nil {
		var job types.Job
		if jerr := json.Unmarshal(raw, &job); jerr == nil {
			return &job, nil
		}
	} else if !errors.Is(err, goredis.Nil) {
		c.log.Warn("redis get failed", "job_id", id.String(), "error", err.Error())
	}

	job, err := c.inner.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	c.put(ctx, job)
	return job, nil
}

// UpdateJob updates the backing store and refreshes the cached copy
func (c *RedisCache) UpdateJob(ctx context.Context, id uuid.UUID, u types.JobUpdate) (*types.Job, error) {
	job, err := c.inner.UpdateJob(ctx, id, u)
	if err != nil {
		return nil, err
	}
	c.put(ctx, job)
	return job, nil
}

func (c *RedisCache) put(ctx context.Context, job *types.Job) {
	raw, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, statusKeyPrefix+job.ID.String(), raw, c.ttl).Err(); err != nil {
		c.log.Warn("redis set failed", "job_id", job.ID.String(), "error", err.Error())
	}
}
