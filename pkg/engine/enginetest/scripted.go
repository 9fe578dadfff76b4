// Package enginetest provides a scripted generation engine for tests, in the
// spirit of lease.RunStoreContract: deterministic output, controllable
// timing, no model backend.
package enginetest

import (
	"context"
	"sync"
	"time"

	"ai-appgen-be/pkg/engine"

	"github.com/google/uuid"
)

// Script describes what a single run emits.
type Script struct {
	// Chunks are emitted in order as chunk events.
	Chunks []string
	// ToolAfter, when >= 0, emits one tool event after that many chunks.
	ToolAfter int
	ToolName  string
	// ChunkDelay spaces out emissions so tests can interleave stops.
	ChunkDelay time.Duration
	// Err, when set, ends the run with an error event instead of finish.
	Err error
	// Hang, when true, never emits a terminal event and ignores Cancel,
	// simulating a stream that will not shut down.
	Hang bool
}

// ScriptedEngine replays a Script for every Start call.
type ScriptedEngine struct {
	Script Script

	mu     sync.Mutex
	starts int
}

var _ engine.Engine = (*ScriptedEngine)(nil)

// Starts reports how many runs were started.
func (e *ScriptedEngine) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

func (e *ScriptedEngine) Start(ctx context.Context, sessionID uuid.UUID, prior []engine.Message, model string) (*engine.Run, error) {
	e.mu.Lock()
	e.starts++
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	run := engine.NewRun(cancel)

	go func() {
		defer run.End()

		for i, chunk := range e.Script.Chunks {
			if runCtx.Err() != nil {
				// Cooperative stop between chunks.
				return
			}
			if e.Script.ChunkDelay > 0 {
				select {
				case <-time.After(e.Script.ChunkDelay):
				case <-runCtx.Done():
					return
				}
			}
			if !run.Emit(runCtx, engine.Event{Kind: engine.EventChunk, Content: chunk}) {
				return
			}
			if e.Script.ToolAfter > 0 && i+1 == e.Script.ToolAfter {
				run.Emit(runCtx, engine.Event{
					Kind:        engine.EventTool,
					ToolName:    e.Script.ToolName,
					ToolPayload: map[string]interface{}{"step": i + 1},
				})
			}
		}

		if e.Script.Hang {
			<-make(chan struct{}) // never terminates
		}

		if e.Script.Err != nil {
			run.Emit(runCtx, engine.Event{Kind: engine.EventError, Err: e.Script.Err})
			return
		}
		run.Emit(runCtx, engine.Event{Kind: engine.EventFinish})
	}()

	return run, nil
}
