package entity

import (
	"time"

	"github.com/google/uuid"
)

// GenerationMessage is one durably stored fragment of a session's
// conversation: the user's prompt, a piece of assistant output, or a tool
// invocation record. Position preserves emission order within a single
// persistence batch.
type GenerationMessage struct {
	Id           uuid.UUID
	AppSessionId uuid.UUID
	Role         string // "user" | "assistant"
	Kind         string // "text" | "tool"
	Content      string
	ToolName     string
	ToolPayload  map[string]interface{}
	Position     int
	CreatedAt    time.Time
}
