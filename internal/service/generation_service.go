package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ai-appgen-be/internal/constant"
	"ai-appgen-be/internal/dto"
	"ai-appgen-be/internal/entity"
	"ai-appgen-be/internal/pkg/logger"
	"ai-appgen-be/internal/repository/unitofwork"
	"ai-appgen-be/pkg/engine"
	"ai-appgen-be/pkg/events"
	"ai-appgen-be/pkg/stream"

	"github.com/google/uuid"
)

// GenerationConfig tunes the orchestrator's timing knobs.
type GenerationConfig struct {
	// HeartbeatInterval is how often the stream lease is renewed. Must be
	// strictly shorter than the tracker TTL.
	HeartbeatInterval time.Duration
	// PersistTimeout bounds the terminal persistence write, which runs on a
	// detached context because the request may already be gone.
	PersistTimeout time.Duration
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		HeartbeatInterval: 5 * time.Second,
		PersistTimeout:    10 * time.Second,
	}
}

// StreamSink receives one response frame. A non-nil error means the client
// is gone; the orchestrator cancels the run and persists what was produced.
type StreamSink func(event dto.StreamEvent) error

// ModelResolver yields the session's model override, "" for the default.
type ModelResolver interface {
	ResolveModel(ctx context.Context, sessionId uuid.UUID) string
}

// IGenerationService is the session orchestrator. Begin claims the session
// and starts the engine; Stream drives the live run to a terminal state.
// The split exists so conflicts (duplicate, busy, store down) surface as
// proper status codes before the response switches to chunked streaming.
type IGenerationService interface {
	Begin(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, request *dto.GenerateRequest) (*Generation, error)
	Stream(ctx context.Context, generation *Generation, sink StreamSink) error
	Stop(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error
}

// Generation is one claimed, live generation handed from Begin to Stream.
type Generation struct {
	sessionId uuid.UUID
	userId    uuid.UUID
	token     string
	run       *engine.Run
	buffer    *stream.Buffer
}

func (g *Generation) SessionId() uuid.UUID { return g.sessionId }

type generationService struct {
	uowFactory unitofwork.RepositoryFactory
	engine     engine.Engine
	guard      *stream.DedupGuard
	tracker    *stream.Tracker
	registry   *stream.CancelRegistry
	models     ModelResolver
	publisher  IStreamEventPublisher
	logger     logger.ILogger
	cfg        GenerationConfig
}

func NewGenerationService(
	uowFactory unitofwork.RepositoryFactory,
	eng engine.Engine,
	guard *stream.DedupGuard,
	tracker *stream.Tracker,
	registry *stream.CancelRegistry,
	models ModelResolver,
	publisher IStreamEventPublisher,
	log logger.ILogger,
	cfg GenerationConfig,
) IGenerationService {
	if cfg.HeartbeatInterval <= 0 {
		cfg = DefaultGenerationConfig()
	}
	return &generationService{
		uowFactory: uowFactory,
		engine:     eng,
		guard:      guard,
		tracker:    tracker,
		registry:   registry,
		models:     models,
		publisher:  publisher,
		logger:     log,
		cfg:        cfg,
	}
}

// Begin claims the session for a new generation.
//
// Order matters: the dedup marker goes first so client retries die cheaply,
// then any running stream for the session is stopped and waited out, then
// the stream lease decides the winner among concurrent starts. Only the
// winner touches the database and the engine.
func (gs *generationService) Begin(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, request *dto.GenerateRequest) (*Generation, error) {
	accepted, token, err := gs.guard.TryBegin(ctx, sessionId, request.RequestToken)
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, stream.ErrDuplicateRequest
	}

	claimed := false
	defer func() {
		if !claimed {
			gs.guard.Finish(context.Background(), sessionId, token)
		}
	}()

	uow := gs.uowFactory.NewUnitOfWork(ctx)
	if _, err := findOwnedSession(ctx, uow, userId, sessionId); err != nil {
		return nil, err
	}

	state, err := gs.tracker.CurrentState(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if state != stream.StateIdle {
		// A new prompt supersedes the running stream: stop it, wait for its
		// buffered output to be persisted and its lease released.
		gs.registry.Invoke(sessionId)
		if _, err := gs.tracker.MarkStopping(ctx, sessionId); err != nil {
			return nil, err
		}
		if err := gs.tracker.AwaitIdle(ctx, sessionId); err != nil {
			return nil, err
		}
	}

	acquired, err := gs.tracker.Acquire(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, stream.ErrSessionBusy
	}

	defer func() {
		if !claimed {
			gs.tracker.Release(context.Background(), sessionId)
		}
	}()

	userMessage := &entity.GenerationMessage{
		Id:           uuid.New(),
		AppSessionId: sessionId,
		Role:         constant.MessageRoleUser,
		Kind:         constant.MessageKindText,
		Content:      request.LastUserMessage,
		CreatedAt:    time.Now(),
	}
	if err := uow.GenerationMessageRepository().AppendBatch(ctx, []*entity.GenerationMessage{userMessage}); err != nil {
		return nil, err
	}

	prior, err := gs.loadPriorContext(ctx, uow, sessionId)
	if err != nil {
		return nil, err
	}

	model := gs.models.ResolveModel(ctx, sessionId)

	// The run is deliberately detached from the request context: its
	// lifetime is governed by the cancel registry, the heartbeat and the
	// client disconnect path, not by the HTTP request object.
	run, err := gs.engine.Start(context.Background(), sessionId, prior, model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stream.ErrEngineFailed, err)
	}

	gs.registry.Register(sessionId, run.Cancel)

	claimed = true
	generation := &Generation{
		sessionId: sessionId,
		userId:    userId,
		token:     token,
		run:       run,
		buffer:    stream.NewBuffer(),
	}

	if err := gs.publisher.Publish(ctx, events.NewStreamStarted(sessionId, userId, model)); err != nil {
		gs.logger.Warn("GenerationService", "Failed to publish stream started event", map[string]interface{}{
			"session_id": sessionId.String(),
			"error":      err.Error(),
		})
	}

	return generation, nil
}

type outcome int

const (
	outcomeStopped outcome = iota
	outcomeFinished
	outcomeFailed
)

// Stream pumps engine events to the sink until the run reaches a terminal
// state, then persists the buffered output and releases every claim taken
// by Begin. It always runs to completion: cancellation and client
// disconnect change the outcome, not the cleanup.
func (gs *generationService) Stream(ctx context.Context, g *Generation, sink StreamSink) error {
	defer func() {
		g.run.Close()
		gs.registry.Unregister(g.sessionId)

		cleanupCtx, cancel := context.WithTimeout(context.Background(), gs.cfg.PersistTimeout)
		defer cancel()
		if err := gs.tracker.Release(cleanupCtx, g.sessionId); err != nil {
			gs.logger.Error("GenerationService", "Failed to release stream lease", map[string]interface{}{
				"session_id": g.sessionId.String(),
				"error":      err.Error(),
			})
		}
		if err := gs.guard.Finish(cleanupCtx, g.sessionId, g.token); err != nil {
			gs.logger.Warn("GenerationService", "Failed to clear dedup marker", map[string]interface{}{
				"session_id": g.sessionId.String(),
				"error":      err.Error(),
			})
		}
	}()

	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go gs.heartbeat(g, heartbeatDone)

	// The default outcome is stopped: a run whose event channel closes
	// without a terminal event was cancelled cooperatively.
	result := outcomeStopped
	failReason := ""
	sinkAlive := true

	emit := func(event dto.StreamEvent) {
		if !sinkAlive {
			return
		}
		if err := sink(event); err != nil {
			// Client is gone. Stop generating; everything buffered so far
			// still gets persisted below.
			sinkAlive = false
			g.run.Cancel()
		}
	}

	for event := range g.run.Events() {
		switch event.Kind {
		case engine.EventChunk:
			g.buffer.Append(stream.Fragment{
				Kind:    constant.MessageKindText,
				Content: event.Content,
			})
			emit(dto.StreamEvent{Type: "chunk", Content: event.Content})

		case engine.EventTool:
			g.buffer.Append(stream.Fragment{
				Kind:        constant.MessageKindTool,
				Content:     event.Content,
				ToolName:    event.ToolName,
				ToolPayload: event.ToolPayload,
			})
			emit(dto.StreamEvent{Type: "tool", ToolName: event.ToolName, ToolPayload: event.ToolPayload})

		case engine.EventFinish:
			result = outcomeFinished

		case engine.EventError:
			result = outcomeFailed
			if event.Err != nil {
				failReason = event.Err.Error()
			}
		}
	}

	fragments := g.buffer.Drain()
	persistErr := gs.persistFragments(g.sessionId, fragments)
	if persistErr != nil && result == outcomeFinished {
		// The output reached the client but not the database. Report the
		// failure instead of pretending the checkpoint happened.
		result = outcomeFailed
		failReason = "failed to persist generated output"
	}

	switch result {
	case outcomeFinished:
		emit(dto.StreamEvent{Type: "done"})
		gs.publishTerminal(events.NewStreamFinished(g.sessionId, g.userId, len(fragments)))
		return nil
	case outcomeStopped:
		emit(dto.StreamEvent{Type: "stopped"})
		gs.publishTerminal(events.NewStreamStopped(g.sessionId, g.userId, len(fragments)))
		return nil
	default:
		if failReason == "" {
			failReason = "generation engine failed"
		}
		emit(dto.StreamEvent{Type: "error", Error: failReason})
		gs.publishTerminal(events.NewStreamFailed(g.sessionId, g.userId, failReason))
		gs.logger.Error("GenerationService", "Generation failed", map[string]interface{}{
			"session_id": g.sessionId.String(),
			"reason":     failReason,
		})
		return fmt.Errorf("%w: %s", stream.ErrEngineFailed, failReason)
	}
}

// Stop requests cancellation of the session's running stream and returns
// immediately. Idempotent: stopping an idle session is a no-op.
func (gs *generationService) Stop(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error {
	uow := gs.uowFactory.NewUnitOfWork(ctx)
	if _, err := findOwnedSession(ctx, uow, userId, sessionId); err != nil {
		return err
	}

	// Local first: if the stream lives in this process its run is cancelled
	// right away. The shared stopping flag covers streams owned by another
	// instance; their heartbeat observes it on the next renewal.
	invoked := gs.registry.Invoke(sessionId)
	marked, err := gs.tracker.MarkStopping(ctx, sessionId)
	if err != nil {
		return err
	}

	if !invoked && !marked {
		gs.logger.Info("GenerationService", "Stop requested for idle session", map[string]interface{}{
			"session_id": sessionId.String(),
		})
	}
	return nil
}

// heartbeat renews the stream lease until the run ends. A stopping flag or
// a lost lease cancels the run; a transient store failure does not, the
// next tick retries and the lease TTL is the backstop.
func (gs *generationService) heartbeat(g *Generation, done <-chan struct{}) {
	ticker := time.NewTicker(gs.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			state, err := gs.tracker.Renew(context.Background(), g.sessionId)
			if err != nil {
				gs.logger.Warn("GenerationService", "Stream lease renewal failed", map[string]interface{}{
					"session_id": g.sessionId.String(),
					"error":      err.Error(),
				})
				continue
			}
			switch state {
			case stream.StateStopping:
				g.run.Cancel()
				return
			case stream.StateIdle:
				gs.logger.Warn("GenerationService", "Stream lease lost, cancelling run", map[string]interface{}{
					"session_id": g.sessionId.String(),
				})
				g.run.Cancel()
				return
			}
		}
	}
}

func (gs *generationService) loadPriorContext(ctx context.Context, uow unitofwork.UnitOfWork, sessionId uuid.UUID) ([]engine.Message, error) {
	recent, err := uow.GenerationMessageRepository().FindRecentBySessionId(ctx, sessionId, constant.PriorContextMessageLimit)
	if err != nil {
		return nil, err
	}

	prior := make([]engine.Message, 0, len(recent)+1)
	prior = append(prior, engine.Message{
		Role:    constant.MessageRoleSystem,
		Content: constant.SystemPromptAppBuilderV1,
	})
	for _, m := range recent {
		content := m.Content
		if m.Kind == constant.MessageKindTool {
			// Tool records re-enter the context as a compact one-liner so
			// the engine knows what it already did.
			payload, _ := json.Marshal(m.ToolPayload)
			content = fmt.Sprintf("[tool %s invoked] %s", m.ToolName, payload)
		}
		prior = append(prior, engine.Message{
			Role:    m.Role,
			Content: content,
		})
	}
	return prior, nil
}

// persistFragments writes the drained buffer as one ordered batch on a
// detached context, since the request that started the stream may be gone.
func (gs *generationService) persistFragments(sessionId uuid.UUID, fragments []stream.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gs.cfg.PersistTimeout)
	defer cancel()

	now := time.Now()
	messages := make([]*entity.GenerationMessage, 0, len(fragments))
	for i, f := range fragments {
		messages = append(messages, &entity.GenerationMessage{
			Id:           uuid.New(),
			AppSessionId: sessionId,
			Role:         constant.MessageRoleAssistant,
			Kind:         f.Kind,
			Content:      f.Content,
			ToolName:     f.ToolName,
			ToolPayload:  f.ToolPayload,
			Position:     i,
			CreatedAt:    now,
		})
	}

	uow := gs.uowFactory.NewUnitOfWork(ctx)
	if err := uow.GenerationMessageRepository().AppendBatch(ctx, messages); err != nil {
		gs.logger.Error("GenerationService", "Failed to persist generated fragments", map[string]interface{}{
			"session_id": sessionId.String(),
			"fragments":  len(fragments),
			"error":      err.Error(),
		})
		return err
	}
	return nil
}

func (gs *generationService) publishTerminal(event events.BaseEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := gs.publisher.Publish(ctx, event); err != nil {
		gs.logger.Warn("GenerationService", "Failed to publish stream lifecycle event", map[string]interface{}{
			"event": event.EventType(),
			"error": err.Error(),
		})
	}
}
