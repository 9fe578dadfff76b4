package llmengine

import (
	"context"
	"errors"

	"ai-appgen-be/internal/pkg/logger"
	"ai-appgen-be/pkg/engine"
	"ai-appgen-be/pkg/llm"

	"github.com/google/uuid"
)

// Engine adapts an llm.LLMProvider to the generation engine contract. Each
// provider delta becomes one chunk event.
type Engine struct {
	provider llm.LLMProvider
	logger   logger.ILogger
}

func New(provider llm.LLMProvider, log logger.ILogger) *Engine {
	return &Engine{
		provider: provider,
		logger:   log,
	}
}

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) Start(ctx context.Context, sessionID uuid.UUID, prior []engine.Message, model string) (*engine.Run, error) {
	runCtx, cancel := context.WithCancel(ctx)
	run := engine.NewRun(cancel)

	history := make([]llm.Message, len(prior))
	for i, msg := range prior {
		history[i] = llm.Message{Role: msg.Role, Content: msg.Content}
	}

	var opts []llm.Option
	if model != "" {
		opts = append(opts, llm.WithModel(model))
	}

	go func() {
		defer run.End()

		err := e.provider.ChatStream(runCtx, history, func(delta string) error {
			if !run.Emit(runCtx, engine.Event{Kind: engine.EventChunk, Content: delta}) {
				return context.Canceled
			}
			return nil
		}, opts...)

		switch {
		case err == nil:
			run.Emit(runCtx, engine.Event{Kind: engine.EventFinish})
		case errors.Is(err, context.Canceled):
			// Cooperative stop acknowledged; the orchestrator already moved
			// to its abort path and drains what was produced.
		default:
			e.logger.Error("LLMEngine", "Provider stream failed", map[string]interface{}{
				"session_id": sessionID.String(),
				"error":      err.Error(),
			})
			run.Emit(runCtx, engine.Event{Kind: engine.EventError, Err: err})
		}
	}()

	return run, nil
}
