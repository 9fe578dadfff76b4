package events

import (
	"time"

	"github.com/google/uuid"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "STREAM_STARTED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the generic Event implementation used by publishers and
// reconstructed by subscribers.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Stream lifecycle event types consumed by the websocket layer and by other
// backend services (usage metering listens on STREAM_FINISHED).
const (
	TypeStreamStarted  = "STREAM_STARTED"
	TypeStreamFinished = "STREAM_FINISHED"
	TypeStreamStopped  = "STREAM_STOPPED"
	TypeStreamFailed   = "STREAM_FAILED"
)

func newStreamEvent(eventType string, sessionID, userID uuid.UUID, extra map[string]interface{}) BaseEvent {
	data := map[string]interface{}{
		"session_id": sessionID.String(),
		"user_id":    userID.String(),
	}
	for k, v := range extra {
		data[k] = v
	}
	return BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
}

func NewStreamStarted(sessionID, userID uuid.UUID, model string) BaseEvent {
	return newStreamEvent(TypeStreamStarted, sessionID, userID, map[string]interface{}{
		"model": model,
	})
}

func NewStreamFinished(sessionID, userID uuid.UUID, fragments int) BaseEvent {
	return newStreamEvent(TypeStreamFinished, sessionID, userID, map[string]interface{}{
		"fragments": fragments,
	})
}

// NewStreamStopped marks a user-initiated stop. Not an error: everything
// produced up to the stop point was persisted.
func NewStreamStopped(sessionID, userID uuid.UUID, fragments int) BaseEvent {
	return newStreamEvent(TypeStreamStopped, sessionID, userID, map[string]interface{}{
		"fragments": fragments,
	})
}

func NewStreamFailed(sessionID, userID uuid.UUID, reason string) BaseEvent {
	return newStreamEvent(TypeStreamFailed, sessionID, userID, map[string]interface{}{
		"reason": reason,
	})
}
