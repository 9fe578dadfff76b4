package stream

import (
	"context"
	"fmt"
	"time"

	"ai-appgen-be/pkg/lease"

	"github.com/google/uuid"
)

const markerProcessing = "processing"

// DedupGuard rejects rapid duplicate requests for the same session using a
// short-lived marker in the lease store. The marker TTL is deliberately much
// shorter than a typical generation: it catches client retries within the
// same network round-trip, it does not lock the whole generation.
type DedupGuard struct {
	store lease.Store
	ttl   time.Duration
}

func NewDedupGuard(store lease.Store, ttl time.Duration) *DedupGuard {
	return &DedupGuard{
		store: store,
		ttl:   ttl,
	}
}

func dedupKey(sessionID uuid.UUID, token string) string {
	return fmt.Sprintf("dedup:%s:%s", sessionID, token)
}

// TryBegin marks the (session, token) pair as being processed. Returns
// accepted=false when an unexpired marker already exists, in which case the
// caller must respond without starting work. An empty token gets a generated
// one, which disables deduplication for that call.
func (g *DedupGuard) TryBegin(ctx context.Context, sessionID uuid.UUID, token string) (accepted bool, effectiveToken string, err error) {
	if token == "" {
		token = uuid.NewString()
	}

	ok, err := g.store.SetNX(ctx, dedupKey(sessionID, token), markerProcessing, g.ttl)
	if err != nil {
		return false, token, err
	}
	if !ok {
		return false, token, nil
	}
	return true, token, nil
}

// Finish deletes the marker explicitly rather than waiting for the TTL, so
// the next distinct request can proceed promptly. Safe to call on an
// already-expired marker.
func (g *DedupGuard) Finish(ctx context.Context, sessionID uuid.UUID, token string) error {
	return g.store.Delete(ctx, dedupKey(sessionID, token))
}
