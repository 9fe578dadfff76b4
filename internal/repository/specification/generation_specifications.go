package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByAppSessionID struct {
	AppSessionID uuid.UUID
}

func (s ByAppSessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("app_session_id = ?", s.AppSessionID)
}

type ByUserID struct {
	UserID uuid.UUID
}

func (s ByUserID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", s.UserID)
}
