package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_BumpSequence(t *testing.T) {
	b := NewBackoff()
	assert.Equal(t, time.Duration(0), b.Current())

	b.Bump()
	assert.Equal(t, 1200*time.Millisecond, b.Current())
	b.Bump()
	assert.Equal(t, 1920*time.Millisecond, b.Current())

	for i := 0; i < 10; i++ {
		b.Bump()
	}
	assert.Equal(t, BackoffMax, b.Current())
}

func TestBackoff_DropHalves(t *testing.T) {
	b := NewBackoff()
	b.Bump()
	b.Drop()
	assert.Equal(t, 600*time.Millisecond, b.Current())

	// A bump from a small residual is floored at the minimum
	b.Drop()
	b.Drop()
	b.Bump()
	assert.Equal(t, BackoffMin, b.Current())

	for i := 0; i < 20; i++ {
		b.Drop()
	}
	assert.Equal(t, time.Duration(0), b.Current())
}

func TestBackoff_WaitZeroDoesNotSleep(t *testing.T) {
	b := NewBackoff()
	called := false
	b.sleep = func(ctx context.Context, d time.Duration) error {
		called = true
		return nil
	}
	assert.NoError(t, b.Wait(context.Background()))
	assert.False(t, called)
}

func TestBackoff_WaitAddsJitter(t *testing.T) {
	b := NewBackoff()
	b.Bump()
	var got time.Duration
	b.sleep = func(ctx context.Context, d time.Duration) error {
		got = d
		return nil
	}
	assert.NoError(t, b.Wait(context.Background()))
	assert.GreaterOrEqual(t, got, BackoffStart)
	assert.Less(t, got, BackoffStart+BackoffJitter)
}

func TestBackoff_WaitHonoursContext(t *testing.T) {
	b := NewBackoff()
	b.Bump()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Wait(ctx), context.Canceled)
}

func TestBackoff_RunsAreIndependent(t *testing.T) {
	a := NewBackoff()
	b := NewBackoff()
	a.Bump()
	assert.Equal(t, time.Duration(0), b.Current())
}
