package lease_test

import (
	"context"
	"testing"
	"time"

	"ai-appgen-be/pkg/lease"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*lease.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return lease.NewRedisStore(client), mr
}

func TestRedisStore_Contract(t *testing.T) {
	store, _ := newRedisStore(t)
	lease.RunStoreContract(t, store)
}

func TestRedisStore_KeyExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "stream:s1", "running", 15*time.Second))

	// Not expired yet
	mr.FastForward(14 * time.Second)
	_, found, err := store.Get(ctx, "stream:s1")
	require.NoError(t, err)
	assert.True(t, found)

	// TTL elapsed => treated as deleted
	mr.FastForward(2 * time.Second)
	_, found, err = store.Get(ctx, "stream:s1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_RenewExtendsTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "stream:s1", "running", 15*time.Second))

	mr.FastForward(10 * time.Second)
	val, found, err := store.Renew(ctx, "stream:s1", 15*time.Second)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "running", val)

	// Would have expired under the original TTL
	mr.FastForward(10 * time.Second)
	_, found, err = store.Get(ctx, "stream:s1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRedisStore_UpdateKeepsTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "stream:s1", "running", 15*time.Second))
	ok, err := store.Update(ctx, "stream:s1", "stopping")
	require.NoError(t, err)
	require.True(t, ok)

	// Expiry still ticks from the original Set
	mr.FastForward(16 * time.Second)
	_, found, err := store.Get(ctx, "stream:s1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_UnreachableSurfacesTransientError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := lease.NewRedisStore(client)
	mr.Close()

	ctx := context.Background()
	_, _, err = store.Get(ctx, "stream:s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, lease.ErrUnavailable)

	err = store.Set(ctx, "stream:s1", "running", time.Second)
	assert.ErrorIs(t, err, lease.ErrUnavailable)
}
