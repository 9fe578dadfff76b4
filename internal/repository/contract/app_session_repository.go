package contract

import (
	"context"

	"ai-appgen-be/internal/entity"
	"ai-appgen-be/internal/repository/specification"

	"github.com/google/uuid"
)

type AppSessionRepository interface {
	Create(ctx context.Context, session *entity.AppSession) error
	Update(ctx context.Context, session *entity.AppSession) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.AppSession, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.AppSession, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
