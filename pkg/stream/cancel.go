package stream

import (
	"sync"

	"github.com/google/uuid"
)

// CancelRegistry holds per-session cancellation callbacks so an
// HTTP-triggered stop can signal a generation started by a different request
// in the same process.
//
// The registry is process-local while the authoritative stream state is
// cross-process. Invoke on a session whose stream lives in another process
// finds no callback and is a no-op; cancellation then happens eventually
// through the lifecycle tracker (the stopping flag observed on renewal, or
// the lease expiring). That is the accepted semantic, not a failure.
type CancelRegistry struct {
	mu        sync.Mutex
	callbacks map[uuid.UUID]func()
}

func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{
		callbacks: make(map[uuid.UUID]func()),
	}
}

// Register installs the callback for the session, replacing any previous
// one. Registered when a generation starts, removed when it ends.
func (r *CancelRegistry) Register(sessionID uuid.UUID, callback func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[sessionID] = callback
}

// Invoke runs the session's callback if one is registered in this process.
// Returns whether a callback was found.
func (r *CancelRegistry) Invoke(sessionID uuid.UUID) bool {
	r.mu.Lock()
	callback, ok := r.callbacks[sessionID]
	r.mu.Unlock()

	if !ok {
		return false
	}
	callback()
	return true
}

// Unregister removes the session's callback. Safe to call when absent.
func (r *CancelRegistry) Unregister(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.callbacks, sessionID)
}
