package llm

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Backoff bounds
const (
	BackoffStart  = 1200 * time.Millisecond
	BackoffMin    = 1000 * time.Millisecond
	BackoffMax    = 8000 * time.Millisecond
	BackoffGrow   = 1.6
	BackoffJitter = 200 * time.Millisecond
)

// Backoff is the rate-limit delay shared by every call in one pipeline run.
// A 429 grows it, any other outcome halves it. Safe for concurrent use.
type Backoff struct {
	mu      sync.Mutex
	current time.Duration
	jitter  func() time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewBackoff returns a Backoff starting at zero
func NewBackoff() *Backoff {
	return &Backoff{
		jitter: func() time.Duration { return time.Duration(rand.Int63n(int64(BackoffJitter))) },
		sleep:  sleepCtx,
	}
}

// Bump grows the delay after a rate-limit response
func (b *Backoff) Bump() {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := BackoffStart
	if b.current > 0 {
		next = time.Duration(float64(b.current) * BackoffGrow)
	}
	if next < BackoffMin {
		next = BackoffMin
	}
	if next > BackoffMax {
		next = BackoffMax
	}
	b.current = next
}

// Drop halves the delay after a call that was not rate limited
func (b *Backoff) Drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current /= 2
	if b.current < time.Millisecond {
		b.current = 0
	}
}

// Current returns the delay without jitter
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Wait sleeps for the current delay plus jitter. It returns immediately when
// the delay is zero and returns ctx.Err() if the context ends first.
func (b *Backoff) Wait(ctx context.Context) error {
	b.mu.Lock()
	d := b.current
	b.mu.Unlock()
	if d <= 0 {
		return nil
	}
	return b.sleep(ctx, d+b.jitter())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
