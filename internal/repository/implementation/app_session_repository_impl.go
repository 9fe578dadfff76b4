package implementation

import (
	"context"
	"errors"

	"ai-appgen-be/internal/entity"
	"ai-appgen-be/internal/mapper"
	"ai-appgen-be/internal/model"
	"ai-appgen-be/internal/repository/contract"
	"ai-appgen-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AppSessionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.GenerationMapper
}

func NewAppSessionRepository(db *gorm.DB) contract.AppSessionRepository {
	return &AppSessionRepositoryImpl{
		db:     db,
		mapper: mapper.NewGenerationMapper(),
	}
}

func (r *AppSessionRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *AppSessionRepositoryImpl) Create(ctx context.Context, session *entity.AppSession) error {
	m := r.mapper.AppSessionToModel(session)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*session = *r.mapper.AppSessionToEntity(m)
	return nil
}

func (r *AppSessionRepositoryImpl) Update(ctx context.Context, session *entity.AppSession) error {
	m := r.mapper.AppSessionToModel(session)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*session = *r.mapper.AppSessionToEntity(m)
	return nil
}

func (r *AppSessionRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.AppSession{}, id).Error
}

func (r *AppSessionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.AppSession, error) {
	var m model.AppSession
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.AppSessionToEntity(&m), nil
}

func (r *AppSessionRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.AppSession, error) {
	var models []model.AppSession
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	sessions := make([]*entity.AppSession, len(models))
	for i := range models {
		sessions[i] = r.mapper.AppSessionToEntity(&models[i])
	}
	return sessions, nil
}

func (r *AppSessionRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.AppSession{}), specs...)
	err := query.Count(&count).Error
	return count, err
}
