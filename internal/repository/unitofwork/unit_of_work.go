package unitofwork

import (
	"context"

	"ai-appgen-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	AppSessionRepository() contract.AppSessionRepository
	GenerationMessageRepository() contract.GenerationMessageRepository
}
