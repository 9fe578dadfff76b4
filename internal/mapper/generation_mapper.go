package mapper

import (
	"encoding/json"
	"time"

	"ai-appgen-be/internal/entity"
	"ai-appgen-be/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type GenerationMapper struct{}

func NewGenerationMapper() *GenerationMapper {
	return &GenerationMapper{}
}

// Session Mappers

func (m *GenerationMapper) AppSessionToEntity(s *model.AppSession) *entity.AppSession {
	if s == nil {
		return nil
	}

	var deletedAt *time.Time
	if s.DeletedAt.Valid {
		t := s.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		updatedAt = &t
	}

	return &entity.AppSession{
		Id:        s.Id,
		UserId:    s.UserId,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
		IsDeleted: s.DeletedAt.Valid,
	}
}

func (m *GenerationMapper) AppSessionToModel(s *entity.AppSession) *model.AppSession {
	if s == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if s.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *s.DeletedAt, Valid: true}
	} else if s.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if s.UpdatedAt != nil {
		updatedAt = *s.UpdatedAt
	}

	return &model.AppSession{
		Id:        s.Id,
		UserId:    s.UserId,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
	}
}

// Message Mappers

func (m *GenerationMapper) MessageToEntity(msg *model.GenerationMessage) *entity.GenerationMessage {
	if msg == nil {
		return nil
	}

	var payload map[string]interface{}
	if len(msg.ToolPayload) > 0 {
		// Malformed payloads degrade to nil rather than failing the read
		_ = json.Unmarshal(msg.ToolPayload, &payload)
	}

	return &entity.GenerationMessage{
		Id:           msg.Id,
		AppSessionId: msg.AppSessionId,
		Role:         msg.Role,
		Kind:         msg.Kind,
		Content:      msg.Content,
		ToolName:     msg.ToolName,
		ToolPayload:  payload,
		Position:     msg.Position,
		CreatedAt:    msg.CreatedAt,
	}
}

func (m *GenerationMapper) MessageToModel(msg *entity.GenerationMessage) *model.GenerationMessage {
	if msg == nil {
		return nil
	}

	var payload datatypes.JSON
	if msg.ToolPayload != nil {
		raw, err := json.Marshal(msg.ToolPayload)
		if err == nil {
			payload = datatypes.JSON(raw)
		}
	}

	return &model.GenerationMessage{
		Id:           msg.Id,
		AppSessionId: msg.AppSessionId,
		Role:         msg.Role,
		Kind:         msg.Kind,
		Content:      msg.Content,
		ToolName:     msg.ToolName,
		ToolPayload:  payload,
		Position:     msg.Position,
		CreatedAt:    msg.CreatedAt,
	}
}
