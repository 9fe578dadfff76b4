package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// EventKind discriminates what the generation engine emitted.
type EventKind string

const (
	// EventChunk is a fragment of assistant output text.
	EventChunk EventKind = "chunk"
	// EventTool reports a tool invocation made by the engine.
	EventTool EventKind = "tool"
	// EventFinish signals natural completion. Terminal.
	EventFinish EventKind = "finish"
	// EventError reports an unrecoverable engine error. Terminal.
	EventError EventKind = "error"
)

// Event is a single item of engine output.
type Event struct {
	Kind        EventKind
	Content     string
	ToolName    string
	ToolPayload map[string]interface{}
	Err         error
}

// Message is one prior-context message in a provider-agnostic format.
type Message struct {
	Role    string // "user" | "assistant" | "system"
	Content string
}

// Engine is the opaque generation backend the orchestrator drives. The
// model argument overrides the engine's default when non-empty.
type Engine interface {
	Start(ctx context.Context, sessionID uuid.UUID, prior []Message, model string) (*Run, error)
}

// Run is a single live generation. Events arrive in emission order on
// Events(); the channel is closed after a terminal event. Cancel requests a
// cooperative stop; the engine checks it at bounded intervals and terminates
// any outstanding call to the underlying model layer.
type Run struct {
	events    chan Event
	cancel    context.CancelFunc
	closeOnce sync.Once
	endOnce   sync.Once
}

// NewRun is used by Engine implementations. cancel tears down the
// implementation's resources when the run is cancelled or closed.
func NewRun(cancel context.CancelFunc) *Run {
	return &Run{
		events: make(chan Event, 16),
		cancel: cancel,
	}
}

// Events returns the ordered stream of engine output.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Cancel requests a cooperative stop. The run emits no further chunks once
// the engine acknowledges; already-emitted events stay readable.
func (r *Run) Cancel() {
	r.cancel()
}

// Close releases engine resources. Idempotent; safe on every exit path.
func (r *Run) Close() error {
	r.closeOnce.Do(r.cancel)
	return nil
}

// Emit delivers an event unless the run context is done. Returns false when
// the event was dropped because the run was cancelled.
func (r *Run) Emit(ctx context.Context, event Event) bool {
	select {
	case r.events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// End closes the event channel. Idempotent.
func (r *Run) End() {
	r.endOnce.Do(func() {
		close(r.events)
	})
}
