package lease_test

import (
	"context"
	"testing"
	"time"

	"ai-appgen-be/pkg/lease"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	lease.RunStoreContract(t, lease.NewMemoryStore())
}

func TestMemoryStore_KeyExpiry(t *testing.T) {
	store := lease.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "dedup:s1:tok", "processing", 30*time.Millisecond))

	_, found, err := store.Get(ctx, "dedup:s1:tok")
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(50 * time.Millisecond)
	_, found, err = store.Get(ctx, "dedup:s1:tok")
	require.NoError(t, err)
	assert.False(t, found)

	// Expired key is free for SetNX again
	ok, err := store.SetNX(ctx, "dedup:s1:tok", "processing", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
