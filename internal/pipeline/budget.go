package pipeline

import "time"

// Budget tracks one run's wall-clock allowance. Crossing the fast-path mark
// makes the continuity variant skip compression; crossing the total skips
// optional repair work. Neither aborts the run.
type Budget struct {
	start    time.Time
	total    time.Duration
	fastPath time.Duration
	now      func() time.Time
}

// NewBudget starts a budget at now(). Zero durations disable that mark.
func NewBudget(now func() time.Time, total, fastPath time.Duration) *Budget {
	if now == nil {
		now = time.Now
	}
	return &Budget{start: now(), total: total, fastPath: fastPath, now: now}
}

// Elapsed returns the time since the budget started
func (b *Budget) Elapsed() time.Duration {
	return b.now().Sub(b.start)
}

// FastPath reports whether the fast-path mark has been crossed
func (b *Budget) FastPath() bool {
	return b.fastPath > 0 && b.Elapsed() >= b.fastPath
}

// Expired reports whether the total budget is spent
func (b *Budget) Expired() bool {
	return b.total > 0 && b.Elapsed() >= b.total
}

// Remaining returns the unspent budget, or 0 when there is no total
func (b *Budget) Remaining() time.Duration {
	if b.total <= 0 {
		return 0
	}
	if left := b.total - b.Elapsed(); left > 0 {
		return left
	}
	return 0
}
