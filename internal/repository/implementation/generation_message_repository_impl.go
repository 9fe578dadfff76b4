package implementation

import (
	"context"

	"ai-appgen-be/internal/entity"
	"ai-appgen-be/internal/mapper"
	"ai-appgen-be/internal/model"
	"ai-appgen-be/internal/repository/contract"
	"ai-appgen-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GenerationMessageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.GenerationMapper
}

func NewGenerationMessageRepository(db *gorm.DB) contract.GenerationMessageRepository {
	return &GenerationMessageRepositoryImpl{
		db:     db,
		mapper: mapper.NewGenerationMapper(),
	}
}

func (r *GenerationMessageRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *GenerationMessageRepositoryImpl) AppendBatch(ctx context.Context, messages []*entity.GenerationMessage) error {
	if len(messages) == 0 {
		return nil
	}

	models := make([]*model.GenerationMessage, len(messages))
	for i, msg := range messages {
		models[i] = r.mapper.MessageToModel(msg)
	}

	// Single insert keeps the batch atomic and preserves slice order.
	if err := r.db.WithContext(ctx).Create(&models).Error; err != nil {
		return err
	}

	for i, m := range models {
		*messages[i] = *r.mapper.MessageToEntity(m)
	}
	return nil
}

func (r *GenerationMessageRepositoryImpl) FindRecentBySessionId(ctx context.Context, sessionId uuid.UUID, limit int) ([]*entity.GenerationMessage, error) {
	var models []model.GenerationMessage
	err := r.db.WithContext(ctx).
		Where("app_session_id = ?", sessionId).
		Order("created_at DESC, position DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order for prompt assembly
	messages := make([]*entity.GenerationMessage, len(models))
	for i := range models {
		messages[len(models)-1-i] = r.mapper.MessageToEntity(&models[i])
	}
	return messages, nil
}

func (r *GenerationMessageRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.GenerationMessage, error) {
	var models []model.GenerationMessage
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	messages := make([]*entity.GenerationMessage, len(models))
	for i := range models {
		messages[i] = r.mapper.MessageToEntity(&models[i])
	}
	return messages, nil
}

func (r *GenerationMessageRepositoryImpl) DeleteBySessionId(ctx context.Context, sessionId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("app_session_id = ?", sessionId).Delete(&model.GenerationMessage{}).Error
}

func (r *GenerationMessageRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.GenerationMessage{}), specs...)
	err := query.Count(&count).Error
	return count, err
}
