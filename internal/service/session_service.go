package service

import (
	"context"
	"fmt"
	"time"

	"ai-appgen-be/internal/dto"
	"ai-appgen-be/internal/entity"
	"ai-appgen-be/internal/repository/memory"
	"ai-appgen-be/internal/repository/specification"
	"ai-appgen-be/internal/repository/unitofwork"
	"ai-appgen-be/pkg/lease"
	"ai-appgen-be/pkg/stream"

	"github.com/google/uuid"
)

// modelOverrideTTL keeps a per-session model choice alive in the shared
// store long enough for a working session, without accumulating keys for
// sessions nobody touches anymore.
const modelOverrideTTL = 24 * time.Hour

// ISessionService manages app-generation sessions: CRUD, history reads, the
// per-session model override and the stream-state probe used by the UI.
type ISessionService interface {
	CreateSession(ctx context.Context, userId uuid.UUID, request *dto.CreateSessionRequest) (*dto.CreateSessionResponse, error)
	GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllSessionsResponse, error)
	GetHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]*dto.GetHistoryResponse, error)
	DeleteSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error
	SetModel(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, request *dto.SetModelRequest) error
	ResolveModel(ctx context.Context, sessionId uuid.UUID) string
	GetStreamState(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) (*dto.StreamStateResponse, error)
}

type sessionService struct {
	uowFactory unitofwork.RepositoryFactory
	leaseStore lease.Store
	modelCache *memory.ModelCache
	tracker    *stream.Tracker
}

func NewSessionService(
	uowFactory unitofwork.RepositoryFactory,
	leaseStore lease.Store,
	modelCache *memory.ModelCache,
	tracker *stream.Tracker,
) ISessionService {
	return &sessionService{
		uowFactory: uowFactory,
		leaseStore: leaseStore,
		modelCache: modelCache,
		tracker:    tracker,
	}
}

func modelKey(sessionId uuid.UUID) string {
	return "model:" + sessionId.String()
}

func (ss *sessionService) CreateSession(ctx context.Context, userId uuid.UUID, request *dto.CreateSessionRequest) (*dto.CreateSessionResponse, error) {
	uow := ss.uowFactory.NewUnitOfWork(ctx)

	title := request.Title
	if title == "" {
		title = "Untitled app"
	}

	appSession := entity.AppSession{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     title,
		CreatedAt: time.Now(),
	}

	if err := uow.AppSessionRepository().Create(ctx, &appSession); err != nil {
		return nil, err
	}

	return &dto.CreateSessionResponse{Id: appSession.Id}, nil
}

func (ss *sessionService) GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllSessionsResponse, error) {
	uow := ss.uowFactory.NewUnitOfWork(ctx)

	sessions, err := uow.AppSessionRepository().FindAll(ctx,
		specification.ByUserID{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	response := make([]*dto.GetAllSessionsResponse, 0, len(sessions))
	for _, s := range sessions {
		response = append(response, &dto.GetAllSessionsResponse{
			Id:        s.Id,
			Title:     s.Title,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		})
	}

	return response, nil
}

func (ss *sessionService) GetHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]*dto.GetHistoryResponse, error) {
	uow := ss.uowFactory.NewUnitOfWork(ctx)

	if _, err := findOwnedSession(ctx, uow, userId, sessionId); err != nil {
		return nil, err
	}

	messages, err := uow.GenerationMessageRepository().FindAll(ctx,
		specification.ByAppSessionID{AppSessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: false},
		specification.OrderBy{Field: "position", Desc: false},
	)
	if err != nil {
		return nil, err
	}

	response := make([]*dto.GetHistoryResponse, 0, len(messages))
	for _, m := range messages {
		response = append(response, &dto.GetHistoryResponse{
			Id:          m.Id,
			Role:        m.Role,
			Kind:        m.Kind,
			Content:     m.Content,
			ToolName:    m.ToolName,
			ToolPayload: m.ToolPayload,
			CreatedAt:   m.CreatedAt,
		})
	}

	return response, nil
}

func (ss *sessionService) DeleteSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error {
	uow := ss.uowFactory.NewUnitOfWork(ctx)

	if _, err := findOwnedSession(ctx, uow, userId, sessionId); err != nil {
		return err
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.GenerationMessageRepository().DeleteBySessionId(ctx, sessionId); err != nil {
		return err
	}
	if err := uow.AppSessionRepository().Delete(ctx, sessionId); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return err
	}

	// Coordination keys are best effort cleanup; both expire on their own.
	ss.modelCache.Delete(sessionId)
	_ = ss.leaseStore.Delete(ctx, modelKey(sessionId))

	return nil
}

// SetModel stores a model override in the shared store so every instance
// resolves the same model on the next generation, and refreshes the local
// cache so this instance picks it up immediately.
func (ss *sessionService) SetModel(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, request *dto.SetModelRequest) error {
	uow := ss.uowFactory.NewUnitOfWork(ctx)

	if _, err := findOwnedSession(ctx, uow, userId, sessionId); err != nil {
		return err
	}

	if err := ss.leaseStore.Set(ctx, modelKey(sessionId), request.Model, modelOverrideTTL); err != nil {
		return err
	}
	ss.modelCache.Save(sessionId, request.Model)

	return nil
}

// ResolveModel returns the session's model override, or "" for the engine
// default. The local cache answers the hot path; the shared store is the
// authority when the cache misses. A store failure here degrades to the
// default model rather than failing the generation.
func (ss *sessionService) ResolveModel(ctx context.Context, sessionId uuid.UUID) string {
	if model, found := ss.modelCache.Get(sessionId); found {
		return model
	}

	model, found, err := ss.leaseStore.Get(ctx, modelKey(sessionId))
	if err != nil || !found {
		return ""
	}
	ss.modelCache.Save(sessionId, model)
	return model
}

func (ss *sessionService) GetStreamState(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) (*dto.StreamStateResponse, error) {
	uow := ss.uowFactory.NewUnitOfWork(ctx)

	if _, err := findOwnedSession(ctx, uow, userId, sessionId); err != nil {
		return nil, err
	}

	state, err := ss.tracker.CurrentState(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	return &dto.StreamStateResponse{
		SessionId: sessionId,
		State:     string(state),
	}, nil
}

// findOwnedSession loads the session and enforces ownership. A missing row
// and a foreign row are indistinguishable to the caller on purpose.
func findOwnedSession(ctx context.Context, uow unitofwork.UnitOfWork, userId, sessionId uuid.UUID) (*entity.AppSession, error) {
	sess, err := uow.AppSessionRepository().FindOne(ctx,
		specification.ByID{ID: sessionId},
		specification.ByUserID{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("session not found or access denied")
	}
	return sess, nil
}
