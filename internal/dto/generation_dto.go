package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateSessionRequest struct {
	Title string `json:"title" validate:"max=200"`
}

type CreateSessionResponse struct {
	Id uuid.UUID `json:"id"`
}

type GetAllSessionsResponse struct {
	Id        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type GetHistoryResponse struct {
	Id          uuid.UUID              `json:"id"`
	Role        string                 `json:"role"`
	Kind        string                 `json:"kind"`
	Content     string                 `json:"content"`
	ToolName    string                 `json:"tool_name,omitempty"`
	ToolPayload map[string]interface{} `json:"tool_payload,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// GenerateRequest starts a generation stream for a session. RequestToken is
// the client-supplied idempotency token; when omitted, deduplication is
// disabled for this call.
type GenerateRequest struct {
	LastUserMessage string `json:"last_user_message" validate:"required"`
	RequestToken    string `json:"request_token,omitempty" validate:"max=128"`
}

// StreamEvent is one frame of the chunked generation response.
type StreamEvent struct {
	Type        string                 `json:"type"` // "chunk" | "tool" | "done" | "stopped" | "error"
	Content     string                 `json:"content,omitempty"`
	ToolName    string                 `json:"tool_name,omitempty"`
	ToolPayload map[string]interface{} `json:"tool_payload,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

type StreamStateResponse struct {
	SessionId uuid.UUID `json:"session_id"`
	State     string    `json:"state"` // "idle" | "running" | "stopping"
}

type SetModelRequest struct {
	Model string `json:"model" validate:"required,max=128"`
}

// StreamStatusUpdate is pushed over the websocket so the UI can show
// per-session liveness without polling.
type StreamStatusUpdate struct {
	SessionId uuid.UUID `json:"session_id"`
	Status    string    `json:"status"` // "started" | "finished" | "stopped" | "failed"
	Timestamp time.Time `json:"timestamp"`
}
