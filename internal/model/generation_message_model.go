package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type GenerationMessage struct {
	Id           uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	AppSessionId uuid.UUID      `gorm:"type:uuid;not null;index"`
	Role         string         `gorm:"type:varchar(50);not null"`
	Kind         string         `gorm:"type:varchar(50);not null"`
	Content      string         `gorm:"type:text"`
	ToolName     string         `gorm:"type:varchar(255)"`
	ToolPayload  datatypes.JSON `gorm:"type:jsonb"`
	Position     int            `gorm:"not null;default:0"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index"`
}

func (GenerationMessage) TableName() string {
	return "generation_messages"
}
