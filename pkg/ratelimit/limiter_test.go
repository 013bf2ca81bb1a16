package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Time) (int64, error) {
	return 0, errors.New("store down")
}

func (failingStore) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, errors.New("store down")
}

func TestCheckAllowsFirstNThenDenies(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter("api", APIPolicy, WithClock(clock.Now))
	ctx := context.Background()

	const max = 5
	for i := 0; i < max; i++ {
		d := limiter.Check(ctx, "1.2.3.4", time.Minute, max)
		require.True(t, d.Allowed, "request %d should be allowed", i+1)
		require.Equal(t, max-(i+1), d.Remaining)
	}

	d := limiter.Check(ctx, "1.2.3.4", time.Minute, max)
	require.False(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)
	require.Equal(t, 50*time.Second, d.RetryAfter)
	require.Equal(t, time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), d.ResetAt.UTC())
}

func TestCheckKeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter("api", APIPolicy, WithClock(clock.Now))
	ctx := context.Background()

	require.True(t, limiter.Check(ctx, "a", time.Minute, 1).Allowed)
	require.False(t, limiter.Check(ctx, "a", time.Minute, 1).Allowed)
	require.True(t, limiter.Check(ctx, "b", time.Minute, 1).Allowed)
}

func TestCheckResetsOnBucketRollover(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter("auth", AuthPolicy, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, limiter.Check(ctx, "ip", time.Minute, 3).Allowed)
	}
	require.False(t, limiter.Check(ctx, "ip", time.Minute, 3).Allowed)

	clock.Advance(time.Minute)
	d := limiter.Check(ctx, "ip", time.Minute, 3)
	require.True(t, d.Allowed)
	require.Equal(t, 2, d.Remaining)
}

func TestCheckAdmitsBoundaryBurst(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter("api", APIPolicy, WithClock(clock.Now))
	ctx := context.Background()

	// last second of the first window
	clock.Advance(49 * time.Second)
	for i := 0; i < 4; i++ {
		require.True(t, limiter.Check(ctx, "ip", time.Minute, 4).Allowed)
	}
	clock.Advance(2 * time.Second)
	for i := 0; i < 4; i++ {
		require.True(t, limiter.Check(ctx, "ip", time.Minute, 4).Allowed)
	}
	require.False(t, limiter.Check(ctx, "ip", time.Minute, 4).Allowed)
}

func TestCheckIsAtomicUnderConcurrency(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter("api", APIPolicy, WithClock(clock.Now))
	ctx := context.Background()

	const max = 50
	var allowed atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 2*max; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if limiter.Check(ctx, "shared", time.Minute, max).Allowed {
				allowed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int64(max), allowed.Load())
}

func TestLimitersUseSeparatePartitions(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	auth := NewLimiter("auth", Policy{Window: time.Minute, Max: 1}, WithStore(store), WithClock(clock.Now))
	api := NewLimiter("api", Policy{Window: time.Minute, Max: 1}, WithStore(store), WithClock(clock.Now))
	ctx := context.Background()

	require.True(t, auth.Allow(ctx, "ip").Allowed)
	require.False(t, auth.Allow(ctx, "ip").Allowed)
	require.True(t, api.Allow(ctx, "ip").Allowed)
	require.Equal(t, 2, store.Len())
}

func TestCheckSeparatesWindowsWithSameBucket(t *testing.T) {
	// both windows put t=10s in bucket 0
	clock := &fakeClock{now: time.UnixMilli(10_000)}
	store := NewMemoryStore()
	limiter := NewLimiter("api", APIPolicy, WithStore(store), WithClock(clock.Now))
	ctx := context.Background()

	require.True(t, limiter.Check(ctx, "ip", 20*time.Second, 1).Allowed)
	require.True(t, limiter.Check(ctx, "ip", 30*time.Second, 1).Allowed)
	require.False(t, limiter.Check(ctx, "ip", 30*time.Second, 1).Allowed)
	require.Equal(t, 2, store.Len())
}

func TestCheckFailsOpenOnStoreError(t *testing.T) {
	limiter := NewLimiter("api", APIPolicy, WithStore(failingStore{}))
	d := limiter.Check(context.Background(), "ip", time.Minute, 1)
	require.True(t, d.Allowed)
	require.Equal(t, 0, limiter.Sweep(context.Background()))
}

func TestCheckWithoutCeilingAllows(t *testing.T) {
	limiter := NewLimiter("api", APIPolicy)
	require.True(t, limiter.Check(context.Background(), "ip", time.Minute, 0).Allowed)
	require.True(t, limiter.Check(context.Background(), "ip", 0, 10).Allowed)
}

func TestSweepRemovesElapsedWindows(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	limiter := NewLimiter("api", APIPolicy, WithStore(store), WithClock(clock.Now))
	ctx := context.Background()

	limiter.Check(ctx, "a", time.Minute, 10)
	limiter.Check(ctx, "b", time.Minute, 10)
	require.Equal(t, 2, store.Len())

	// still inside the window
	require.Zero(t, limiter.Sweep(ctx))

	clock.Advance(51 * time.Second)
	require.Equal(t, 2, limiter.Sweep(ctx))
	require.Zero(t, store.Len())
}

func TestSweepBoundsMemoryAcrossWindows(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	limiter := NewLimiter("api", APIPolicy, WithStore(store), WithClock(clock.Now))
	ctx := context.Background()

	const keysPerWindow = 40
	clock.Advance(500 * time.Millisecond)
	for window := 0; window < 100; window++ {
		for k := 0; k < keysPerWindow; k++ {
			limiter.Check(ctx, fmt.Sprintf("client-%d-%d", window, k), time.Second, 5)
		}
		clock.Advance(time.Second)
		limiter.Sweep(ctx)
		require.LessOrEqual(t, store.Len(), keysPerWindow)
	}
	clock.Advance(time.Second)
	limiter.Sweep(ctx)
	require.Zero(t, store.Len())
}

func TestStartSweeperStopsWithContext(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	limiter := NewLimiter("api", APIPolicy, WithStore(store), WithClock(clock.Now))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter.Check(ctx, "a", time.Minute, 10)
	clock.Advance(2 * time.Minute)

	limiter.StartSweeper(ctx, 5*time.Millisecond)
	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
}
