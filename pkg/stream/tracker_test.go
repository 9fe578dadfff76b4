package stream_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ai-appgen-be/internal/pkg/logger"
	"ai-appgen-be/pkg/lease"
	"ai-appgen-be/pkg/stream"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(cfg stream.TrackerConfig) *stream.Tracker {
	return stream.NewTracker(lease.NewMemoryStore(), logger.NewNopLogger(), cfg)
}

func fastConfig() stream.TrackerConfig {
	return stream.TrackerConfig{
		TTL:          time.Second,
		PollInterval: 5 * time.Millisecond,
		PollAttempts: 10,
	}
}

func TestTracker_AcquireIsExclusive(t *testing.T) {
	tracker := newTracker(fastConfig())
	ctx := context.Background()
	sessionID := uuid.New()

	ok, err := tracker.Acquire(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tracker.Acquire(ctx, sessionID)
	require.NoError(t, err)
	assert.False(t, ok)

	state, err := tracker.CurrentState(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, stream.StateRunning, state)
}

func TestTracker_ConcurrentAcquireSingleWinner(t *testing.T) {
	// Shared store, many goroutines standing in for concurrent processes.
	store := lease.NewMemoryStore()
	sessionID := uuid.New()
	ctx := context.Background()

	const attempts = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker := stream.NewTracker(store, logger.NewNopLogger(), fastConfig())
			ok, err := tracker.Acquire(ctx, sessionID)
			require.NoError(t, err)
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one concurrent starter may win the lease")
}

func TestTracker_ReleaseIsIdempotent(t *testing.T) {
	tracker := newTracker(fastConfig())
	ctx := context.Background()
	sessionID := uuid.New()

	ok, err := tracker.Acquire(ctx, sessionID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tracker.Release(ctx, sessionID))
	// Cleanup sweep after a normal finish must not blow up.
	require.NoError(t, tracker.Release(ctx, sessionID))

	state, err := tracker.CurrentState(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, stream.StateIdle, state)
}

func TestTracker_RenewObservesStopping(t *testing.T) {
	tracker := newTracker(fastConfig())
	ctx := context.Background()
	sessionID := uuid.New()

	ok, err := tracker.Acquire(ctx, sessionID)
	require.NoError(t, err)
	require.True(t, ok)

	marked, err := tracker.MarkStopping(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, marked)

	state, err := tracker.Renew(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, stream.StateStopping, state)
}

func TestTracker_MarkStoppingWithoutStream(t *testing.T) {
	tracker := newTracker(fastConfig())

	marked, err := tracker.MarkStopping(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestTracker_StaleStreamExpires(t *testing.T) {
	// Simulate a killed process by never renewing: the session must read as
	// idle once the TTL elapses, and not a moment sooner.
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store := lease.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	tracker := stream.NewTracker(store, logger.NewNopLogger(), stream.TrackerConfig{
		TTL:          15 * time.Second,
		PollInterval: 5 * time.Millisecond,
		PollAttempts: 10,
	})
	ctx := context.Background()
	sessionID := uuid.New()

	ok, err := tracker.Acquire(ctx, sessionID)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(14 * time.Second)
	state, err := tracker.CurrentState(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, stream.StateRunning, state, "lease must not expire early")

	mr.FastForward(2 * time.Second)
	state, err = tracker.CurrentState(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, stream.StateIdle, state, "dead stream must become observable as idle after TTL")
}

func TestTracker_AwaitIdleReturnsOnceReleased(t *testing.T) {
	tracker := newTracker(fastConfig())
	ctx := context.Background()
	sessionID := uuid.New()

	ok, err := tracker.Acquire(ctx, sessionID)
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(15 * time.Millisecond)
		_ = tracker.Release(ctx, sessionID)
	}()

	err = tracker.AwaitIdle(ctx, sessionID)
	assert.NoError(t, err)
}

func TestTracker_AwaitIdleForceReleasesAfterBound(t *testing.T) {
	// A stream that never releases its key: the caller gets the conflict
	// error and the key is force-deleted so the session is not wedged.
	tracker := newTracker(fastConfig())
	ctx := context.Background()
	sessionID := uuid.New()

	ok, err := tracker.Acquire(ctx, sessionID)
	require.NoError(t, err)
	require.True(t, ok)

	err = tracker.AwaitIdle(ctx, sessionID)
	assert.ErrorIs(t, err, stream.ErrStopInProgress)

	state, err := tracker.CurrentState(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, stream.StateIdle, state)
}

func TestTracker_AwaitIdleHonorsCallerDeadline(t *testing.T) {
	cfg := fastConfig()
	cfg.PollAttempts = 1000
	tracker := newTracker(cfg)
	sessionID := uuid.New()

	ok, err := tracker.Acquire(context.Background(), sessionID)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = tracker.AwaitIdle(ctx, sessionID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
