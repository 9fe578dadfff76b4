package stream

import (
	"context"
	"time"

	"ai-appgen-be/internal/pkg/logger"
	"ai-appgen-be/pkg/lease"

	"github.com/google/uuid"
)

// State is the externally observable lifecycle state of a session's stream.
type State string

const (
	// StateIdle means no tracker key exists for the session.
	StateIdle State = "idle"
	// StateRunning means a generation is active and renewing its lease.
	StateRunning State = "running"
	// StateStopping means a cancellation was requested but the generation
	// has not yet acknowledged it.
	StateStopping State = "stopping"
)

// TrackerConfig tunes lease lifetime and the stop-and-wait protocol.
type TrackerConfig struct {
	// TTL is the lease lifetime of the stream key. If renewal stops (crash,
	// deadlock) the key expires and the session reads as idle again.
	TTL time.Duration
	// PollInterval is how often stop-and-wait re-checks the tracker key.
	PollInterval time.Duration
	// PollAttempts bounds how long a caller can be kept waiting for a
	// cooperative cancellation that never completes.
	PollAttempts int
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		TTL:          15 * time.Second,
		PollInterval: 500 * time.Millisecond,
		PollAttempts: 60,
	}
}

// Tracker maintains the authoritative stream state for a session in the
// lease store. The store's atomic SetNX is the sole arbiter of the
// one-stream-per-session invariant across processes.
type Tracker struct {
	store  lease.Store
	logger logger.ILogger
	cfg    TrackerConfig
}

func NewTracker(store lease.Store, log logger.ILogger, cfg TrackerConfig) *Tracker {
	if cfg.TTL <= 0 {
		cfg = DefaultTrackerConfig()
	}
	return &Tracker{
		store:  store,
		logger: log,
		cfg:    cfg,
	}
}

func streamKey(sessionID uuid.UUID) string {
	return "stream:" + sessionID.String()
}

// Acquire transitions absent -> running. Returns false if another stream
// (possibly in another process) already holds the key.
func (t *Tracker) Acquire(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	return t.store.SetNX(ctx, streamKey(sessionID), string(StateRunning), t.cfg.TTL)
}

// Renew extends the lease and reports the current state. The heartbeat must
// call this at an interval strictly shorter than the TTL. A StateStopping
// result tells the owning orchestrator that a stop was requested, possibly
// from another process. StateIdle means the lease was lost.
func (t *Tracker) Renew(ctx context.Context, sessionID uuid.UUID) (State, error) {
	val, found, err := t.store.Renew(ctx, streamKey(sessionID), t.cfg.TTL)
	if err != nil {
		return StateIdle, err
	}
	if !found {
		return StateIdle, nil
	}
	return State(val), nil
}

// MarkStopping records a cancellation request in the shared key, keeping the
// current TTL. Returns false if no stream is running.
func (t *Tracker) MarkStopping(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	return t.store.Update(ctx, streamKey(sessionID), string(StateStopping))
}

// Release transitions to absent. Deleting immediately instead of letting the
// key expire means a subsequent request is not forced to wait out the TTL.
// Idempotent: releasing an already-absent key is fine.
func (t *Tracker) Release(ctx context.Context, sessionID uuid.UUID) error {
	return t.store.Delete(ctx, streamKey(sessionID))
}

// CurrentState reads the tracker key without touching its TTL.
func (t *Tracker) CurrentState(ctx context.Context, sessionID uuid.UUID) (State, error) {
	val, found, err := t.store.Get(ctx, streamKey(sessionID))
	if err != nil {
		return StateIdle, err
	}
	if !found {
		return StateIdle, nil
	}
	return State(val), nil
}

// AwaitIdle polls until the session's tracker key disappears. If the key is
// still present after the configured bound it is deleted forcibly and
// ErrStopInProgress is returned, so two generations can never race against
// the same session. The caller's context deadline is honored independently.
func (t *Tracker) AwaitIdle(ctx context.Context, sessionID uuid.UUID) error {
	for attempt := 0; attempt < t.cfg.PollAttempts; attempt++ {
		state, err := t.CurrentState(ctx, sessionID)
		if err != nil {
			return err
		}
		if state == StateIdle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.cfg.PollInterval):
		}
	}

	t.logger.Warn("StreamTracker", "Stop-and-wait bound exceeded, force releasing stream lease", map[string]interface{}{
		"session_id": sessionID.String(),
		"attempts":   t.cfg.PollAttempts,
	})
	if err := t.Release(ctx, sessionID); err != nil {
		return err
	}
	return ErrStopInProgress
}
