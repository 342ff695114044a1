package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jonathan/continuity-handoff/internal/types"
)

// Memory store expirations
const (
	DefaultJobTTL       = 24 * time.Hour
	cleanupInterval     = 30 * time.Minute
	checkpointKeyPrefix = "checkpoints:"
)

// MemoryStore keeps jobs in an expiring in-process cache and checkpoints
// without expiry. It implements Store and CheckpointStore.
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewMemoryStore creates a MemoryStore whose jobs expire after ttl
// (DefaultJobTTL when zero)
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &MemoryStore{cache: cache.New(ttl, cleanupInterval)}
}

// CreateJob stores a copy of job
func (m *MemoryStore) CreateJob(_ context.Context, job *types.Job) error {
	cp := *job
	m.cache.Set(job.ID.String(), &cp, cache.DefaultExpiration)
	return nil
}

// GetJob returns a copy of the stored job
func (m *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

// UpdateJob applies u and returns a copy of the result
func (m *MemoryStore) UpdateJob(_ context.Context, id uuid.UUID, u types.JobUpdate) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.get(id)
	if err != nil {
		return nil, err
	}
	u.Apply(job)
	stored := *job
	m.cache.Set(id.String(), &stored, cache.DefaultExpiration)
	return job, nil
}

func (m *MemoryStore) get(id uuid.UUID) (*types.Job, error) {
	x, found := m.cache.Get(id.String())
	if !found {
		return nil, ErrJobNotFound
	}
	cp := *x.(*types.Job)
	return &cp, nil
}

// NextCheckpointNumber returns one more than the highest number saved for the thread
func (m *MemoryStore) NextCheckpointNumber(_ context.Context, threadID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := 1
	for _, cp := range m.checkpoints(threadID) {
		if cp.CheckpointNumber >= next {
			next = cp.CheckpointNumber + 1
		}
	}
	return next, nil
}

// SaveCheckpoint inserts or replaces a checkpoint
func (m *MemoryStore) SaveCheckpoint(_ context.Context, cp *types.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.checkpoints(cp.ThreadID)
	out := make([]types.Checkpoint, 0, len(list)+1)
	for _, c := range list {
		if c.CheckpointNumber != cp.CheckpointNumber {
			out = append(out, c)
		}
	}
	out = append(out, *cp)
	m.cache.Set(checkpointKeyPrefix+cp.ThreadID, out, cache.NoExpiration)
	return nil
}

// ListCheckpoints returns up to limit checkpoints, newest first
func (m *MemoryStore) ListCheckpoints(_ context.Context, threadID string, limit int) ([]types.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append([]types.Checkpoint(nil), m.checkpoints(threadID)...)
	sort.Slice(list, func(a, b int) bool { return list[a].CheckpointNumber > list[b].CheckpointNumber })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// CountCheckpoints returns the number of checkpoints saved for the thread
func (m *MemoryStore) CountCheckpoints(_ context.Context, threadID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.checkpoints(threadID)), nil
}

func (m *MemoryStore) checkpoints(threadID string) []types.Checkpoint {
	if x, found := m.cache.Get(checkpointKeyPrefix + threadID); found {
		return x.([]types.Checkpoint)
	}
	return nil
}
