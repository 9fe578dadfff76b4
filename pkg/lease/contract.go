package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract exercises the atomic semantics every Store implementation
// must provide. Implementation test files call this against their own setup.
func RunStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	ttl := time.Minute

	t.Run("Get absent key", func(t *testing.T) {
		_, found, err := store.Get(ctx, "contract:absent")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Set then Get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "contract:a", "one", ttl))
		val, found, err := store.Get(ctx, "contract:a")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "one", val)
	})

	t.Run("SetNX only first writer wins", func(t *testing.T) {
		ok, err := store.SetNX(ctx, "contract:nx", "first", ttl)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.SetNX(ctx, "contract:nx", "second", ttl)
		require.NoError(t, err)
		assert.False(t, ok)

		val, _, err := store.Get(ctx, "contract:nx")
		require.NoError(t, err)
		assert.Equal(t, "first", val)
	})

	t.Run("Update requires existing key", func(t *testing.T) {
		ok, err := store.Update(ctx, "contract:missing", "x")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.Set(ctx, "contract:u", "before", ttl))
		ok, err = store.Update(ctx, "contract:u", "after")
		require.NoError(t, err)
		assert.True(t, ok)

		val, _, err := store.Get(ctx, "contract:u")
		require.NoError(t, err)
		assert.Equal(t, "after", val)
	})

	t.Run("Renew returns current value", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "contract:r", "alive", ttl))
		val, found, err := store.Renew(ctx, "contract:r", ttl)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "alive", val)

		_, found, err = store.Renew(ctx, "contract:r-missing", ttl)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "contract:d", "x", ttl))
		require.NoError(t, store.Delete(ctx, "contract:d"))
		require.NoError(t, store.Delete(ctx, "contract:d"))

		_, found, err := store.Get(ctx, "contract:d")
		require.NoError(t, err)
		assert.False(t, found)
	})
}
