package lease

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable signals that the backing store could not be reached.
// Callers must treat the operation as failed and surface a transient error.
// They must NOT assume the key is absent, otherwise two processes could
// concurrently believe a session is idle.
var ErrUnavailable = errors.New("lease store unavailable")

// Store is a key-value store with per-key expiry used for cross-process
// coordination. All operations are atomic with respect to other processes
// touching the same key. A key whose TTL elapses behaves as if deleted.
type Store interface {
	// Set writes the value unconditionally. TTL is mandatory.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes the value only if the key is absent. Returns true when
	// this call created the key. This is the sole arbiter for "at most one
	// stream per session" across processes.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Update replaces the value of an existing key, keeping its current TTL.
	// Returns false if the key does not exist (or already expired).
	Update(ctx context.Context, key, value string) (bool, error)

	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Renew extends the TTL of an existing key and returns its current value.
	// Returns found=false if the key is gone, which a heartbeat owner must
	// treat as having lost the lease.
	Renew(ctx context.Context, key string, ttl time.Duration) (string, bool, error)

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
