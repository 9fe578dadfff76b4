package memory

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ModelCache is a process-local read cache for per-session model overrides.
// The lease store key model:{sessionId} stays authoritative across
// processes; this cache just avoids a round-trip on every chunk request.
type ModelCache struct {
	cache *cache.Cache
}

func NewModelCache() *ModelCache {
	// Entries expire after 5 minutes so cross-process overrides are picked
	// up without an explicit invalidation channel
	c := cache.New(5*time.Minute, 10*time.Minute)
	return &ModelCache{
		cache: c,
	}
}

func (r *ModelCache) Save(sessionID uuid.UUID, model string) {
	r.cache.Set(sessionID.String(), model, cache.DefaultExpiration)
}

func (r *ModelCache) Get(sessionID uuid.UUID) (string, bool) {
	if x, found := r.cache.Get(sessionID.String()); found {
		return x.(string), true
	}
	return "", false
}

func (r *ModelCache) Delete(sessionID uuid.UUID) {
	r.cache.Delete(sessionID.String())
}
