package contract

import (
	"context"

	"ai-appgen-be/internal/entity"
	"ai-appgen-be/internal/repository/specification"

	"github.com/google/uuid"
)

type GenerationMessageRepository interface {
	// AppendBatch inserts the messages in slice order as one batch. Used by
	// the stream orchestrator to persist a drained buffer atomically.
	AppendBatch(ctx context.Context, messages []*entity.GenerationMessage) error

	// FindRecentBySessionId returns the newest messages of the session in
	// chronological order, used to seed prior context on (re)start.
	FindRecentBySessionId(ctx context.Context, sessionId uuid.UUID, limit int) ([]*entity.GenerationMessage, error)

	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.GenerationMessage, error)
	DeleteBySessionId(ctx context.Context, sessionId uuid.UUID) error
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
