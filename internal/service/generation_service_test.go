package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-appgen-be/internal/constant"
	"ai-appgen-be/internal/dto"
	"ai-appgen-be/internal/entity"
	"ai-appgen-be/internal/pkg/logger"
	"ai-appgen-be/internal/repository/contract"
	"ai-appgen-be/internal/repository/specification"
	"ai-appgen-be/internal/repository/unitofwork"
	"ai-appgen-be/pkg/engine/enginetest"
	"ai-appgen-be/pkg/events"
	"ai-appgen-be/pkg/lease"
	"ai-appgen-be/pkg/stream"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- in-memory repository fakes ---

type fakeStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entity.AppSession
	messages []*entity.GenerationMessage
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[uuid.UUID]*entity.AppSession)}
}

func (s *fakeStore) addSession(sess *entity.AppSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Id] = sess
}

func (s *fakeStore) allMessages() []*entity.GenerationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.GenerationMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

type fakeRepoFactory struct{ store *fakeStore }

func (f *fakeRepoFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &fakeUnitOfWork{store: f.store}
}

type fakeUnitOfWork struct{ store *fakeStore }

func (u *fakeUnitOfWork) Begin(ctx context.Context) error { return nil }
func (u *fakeUnitOfWork) Commit() error                   { return nil }
func (u *fakeUnitOfWork) Rollback() error                 { return nil }

func (u *fakeUnitOfWork) AppSessionRepository() contract.AppSessionRepository {
	return &fakeSessionRepo{store: u.store}
}

func (u *fakeUnitOfWork) GenerationMessageRepository() contract.GenerationMessageRepository {
	return &fakeMessageRepo{store: u.store}
}

type fakeSessionRepo struct{ store *fakeStore }

func (r *fakeSessionRepo) Create(ctx context.Context, sess *entity.AppSession) error {
	r.store.addSession(sess)
	return nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, sess *entity.AppSession) error { return nil }

func (r *fakeSessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.sessions, id)
	return nil
}

func (r *fakeSessionRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.AppSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, sess := range r.store.sessions {
		if sessionMatches(sess, specs) {
			return sess, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.AppSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.AppSession
	for _, sess := range r.store.sessions {
		if sessionMatches(sess, specs) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	found, _ := r.FindAll(ctx, specs...)
	return int64(len(found)), nil
}

func sessionMatches(sess *entity.AppSession, specs []specification.Specification) bool {
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.ByID:
			if sess.Id != s.ID {
				return false
			}
		case specification.ByUserID:
			if sess.UserId != s.UserID {
				return false
			}
		}
	}
	return true
}

type fakeMessageRepo struct{ store *fakeStore }

func (r *fakeMessageRepo) AppendBatch(ctx context.Context, messages []*entity.GenerationMessage) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.messages = append(r.store.messages, messages...)
	return nil
}

func (r *fakeMessageRepo) FindRecentBySessionId(ctx context.Context, sessionId uuid.UUID, limit int) ([]*entity.GenerationMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.GenerationMessage
	for _, m := range r.store.messages {
		if m.AppSessionId == sessionId {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *fakeMessageRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.GenerationMessage, error) {
	return nil, nil
}

func (r *fakeMessageRepo) DeleteBySessionId(ctx context.Context, sessionId uuid.UUID) error {
	return nil
}

func (r *fakeMessageRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return 0, nil
}

// --- other fakes ---

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

type staticModelResolver struct{ model string }

func (r staticModelResolver) ResolveModel(ctx context.Context, sessionId uuid.UUID) string {
	return r.model
}

// frameRecorder is a StreamSink collecting frames, optionally failing after
// a set number to simulate a client disconnect.
type frameRecorder struct {
	mu        sync.Mutex
	frames    []dto.StreamEvent
	failAfter int // 0 means never fail
}

func (fr *frameRecorder) sink(event dto.StreamEvent) error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.failAfter > 0 && len(fr.frames) >= fr.failAfter {
		return errors.New("client went away")
	}
	fr.frames = append(fr.frames, event)
	return nil
}

func (fr *frameRecorder) all() []dto.StreamEvent {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	out := make([]dto.StreamEvent, len(fr.frames))
	copy(out, fr.frames)
	return out
}

// --- fixture ---

type fixture struct {
	svc       IGenerationService
	engine    *enginetest.ScriptedEngine
	store     *fakeStore
	tracker   *stream.Tracker
	publisher *capturePublisher
	userId    uuid.UUID
	sessionId uuid.UUID
}

func newFixture(t *testing.T, script enginetest.Script, trackerCfg stream.TrackerConfig) *fixture {
	t.Helper()

	leaseStore := lease.NewMemoryStore()
	log := logger.NewNopLogger()
	eng := &enginetest.ScriptedEngine{Script: script}
	store := newFakeStore()
	publisher := &capturePublisher{}
	tracker := stream.NewTracker(leaseStore, log, trackerCfg)

	userId := uuid.New()
	sessionId := uuid.New()
	store.addSession(&entity.AppSession{
		Id:        sessionId,
		UserId:    userId,
		Title:     "todo app",
		CreatedAt: time.Now(),
	})

	svc := NewGenerationService(
		&fakeRepoFactory{store: store},
		eng,
		stream.NewDedupGuard(leaseStore, 10*time.Second),
		tracker,
		stream.NewCancelRegistry(),
		staticModelResolver{},
		publisher,
		log,
		GenerationConfig{
			HeartbeatInterval: 20 * time.Millisecond,
			PersistTimeout:    5 * time.Second,
		},
	)

	return &fixture{
		svc:       svc,
		engine:    eng,
		store:     store,
		tracker:   tracker,
		publisher: publisher,
		userId:    userId,
		sessionId: sessionId,
	}
}

func fastTrackerConfig() stream.TrackerConfig {
	return stream.TrackerConfig{
		TTL:          15 * time.Second,
		PollInterval: 10 * time.Millisecond,
		PollAttempts: 100,
	}
}

// --- tests ---

func TestGenerationFinishesAndPersistsInOrder(t *testing.T) {
	f := newFixture(t, enginetest.Script{
		Chunks:    []string{"first ", "second ", "third"},
		ToolAfter: 2,
		ToolName:  "scaffold_project",
	}, fastTrackerConfig())
	ctx := context.Background()

	gen, err := f.svc.Begin(ctx, f.userId, f.sessionId, &dto.GenerateRequest{LastUserMessage: "build me a todo app"})
	require.NoError(t, err)

	recorder := &frameRecorder{}
	require.NoError(t, f.svc.Stream(ctx, gen, recorder.sink))

	frames := recorder.all()
	require.Len(t, frames, 5)
	assert.Equal(t, "chunk", frames[0].Type)
	assert.Equal(t, "chunk", frames[1].Type)
	assert.Equal(t, "tool", frames[2].Type)
	assert.Equal(t, "scaffold_project", frames[2].ToolName)
	assert.Equal(t, "chunk", frames[3].Type)
	assert.Equal(t, "done", frames[4].Type)

	// User prompt first, then the assistant fragments in emission order.
	messages := f.store.allMessages()
	require.Len(t, messages, 5)
	assert.Equal(t, constant.MessageRoleUser, messages[0].Role)
	assert.Equal(t, "build me a todo app", messages[0].Content)
	assert.Equal(t, "first ", messages[1].Content)
	assert.Equal(t, "second ", messages[2].Content)
	assert.Equal(t, constant.MessageKindTool, messages[3].Kind)
	assert.Equal(t, "third", messages[4].Content)
	for i, m := range messages[1:] {
		assert.Equal(t, i, m.Position)
		assert.Equal(t, constant.MessageRoleAssistant, m.Role)
	}

	state, err := f.tracker.CurrentState(ctx, f.sessionId)
	require.NoError(t, err)
	assert.Equal(t, stream.StateIdle, state)

	assert.Equal(t, []string{events.TypeStreamStarted, events.TypeStreamFinished}, f.publisher.types())
}

func TestConcurrentDuplicateTokenAcceptedOnce(t *testing.T) {
	f := newFixture(t, enginetest.Script{
		Chunks:     []string{"a", "b", "c"},
		ChunkDelay: 5 * time.Millisecond,
	}, fastTrackerConfig())
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	generations := make(chan *Generation, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen, err := f.svc.Begin(ctx, f.userId, f.sessionId, &dto.GenerateRequest{
				LastUserMessage: "build me a todo app",
				RequestToken:    "retry-burst-1",
			})
			results <- err
			if err == nil {
				generations <- gen
			}
		}()
	}
	wg.Wait()
	close(results)
	close(generations)

	var accepted, duplicates int
	for err := range results {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, stream.ErrDuplicateRequest):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, attempts-1, duplicates)
	assert.Equal(t, 1, f.engine.Starts())

	for gen := range generations {
		recorder := &frameRecorder{}
		require.NoError(t, f.svc.Stream(ctx, gen, recorder.sink))
	}
}

func TestStopMidStreamPersistsPartialOutput(t *testing.T) {
	f := newFixture(t, enginetest.Script{
		Chunks:     manyChunks(200),
		ChunkDelay: 5 * time.Millisecond,
	}, fastTrackerConfig())
	ctx := context.Background()

	gen, err := f.svc.Begin(ctx, f.userId, f.sessionId, &dto.GenerateRequest{LastUserMessage: "go"})
	require.NoError(t, err)

	recorder := &frameRecorder{}
	done := make(chan error, 1)
	go func() { done <- f.svc.Stream(ctx, gen, recorder.sink) }()

	// Let a few chunks through, then stop.
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, f.svc.Stop(ctx, f.userId, f.sessionId))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate after stop")
	}

	frames := recorder.all()
	require.NotEmpty(t, frames)
	assert.Equal(t, "stopped", frames[len(frames)-1].Type)

	messages := f.store.allMessages()
	produced := len(messages) - 1 // minus the user prompt
	assert.Greater(t, produced, 0)
	assert.Less(t, produced, 200)

	// Everything the client saw was persisted, in order: the chunk frames
	// line up one-to-one with the assistant messages after the user prompt.
	chunkFrames := frames[:len(frames)-1]
	require.Len(t, messages[1:], len(chunkFrames))
	for i, frame := range chunkFrames {
		require.Equal(t, "chunk", frame.Type)
		assert.Equal(t, frame.Content, messages[i+1].Content)
		assert.Equal(t, "assistant", messages[i+1].Role)
	}

	state, err := f.tracker.CurrentState(ctx, f.sessionId)
	require.NoError(t, err)
	assert.Equal(t, stream.StateIdle, state)

	types := f.publisher.types()
	require.Len(t, types, 2)
	assert.Equal(t, events.TypeStreamStopped, types[1])
}

func TestNewPromptSupersedesRunningStream(t *testing.T) {
	f := newFixture(t, enginetest.Script{
		Chunks:     manyChunks(200),
		ChunkDelay: 5 * time.Millisecond,
	}, fastTrackerConfig())
	ctx := context.Background()

	first, err := f.svc.Begin(ctx, f.userId, f.sessionId, &dto.GenerateRequest{LastUserMessage: "first prompt"})
	require.NoError(t, err)

	firstRecorder := &frameRecorder{}
	firstDone := make(chan error, 1)
	go func() { firstDone <- f.svc.Stream(ctx, first, firstRecorder.sink) }()

	time.Sleep(40 * time.Millisecond)

	// The second prompt cancels the first stream, waits for its lease to be
	// released, then claims the session itself.
	second, err := f.svc.Begin(ctx, f.userId, f.sessionId, &dto.GenerateRequest{LastUserMessage: "second prompt"})
	require.NoError(t, err)
	require.NoError(t, <-firstDone)

	firstFrames := firstRecorder.all()
	assert.Equal(t, "stopped", firstFrames[len(firstFrames)-1].Type)

	require.NoError(t, f.svc.Stop(ctx, f.userId, f.sessionId))
	secondRecorder := &frameRecorder{}
	require.NoError(t, f.svc.Stream(ctx, second, secondRecorder.sink))

	// First stream's output was persisted before the second prompt's row.
	messages := f.store.allMessages()
	var prompts []int
	for i, m := range messages {
		if m.Role == constant.MessageRoleUser {
			prompts = append(prompts, i)
		}
	}
	require.Len(t, prompts, 2)
	assert.Greater(t, prompts[1], prompts[0]+1, "expected fragments of the first stream between the two prompts")

	assert.Equal(t, 2, f.engine.Starts())
}

func TestStopAndWaitBoundForceReleases(t *testing.T) {
	cfg := fastTrackerConfig()
	cfg.PollAttempts = 3
	f := newFixture(t, enginetest.Script{Hang: true}, cfg)
	ctx := context.Background()

	first, err := f.svc.Begin(ctx, f.userId, f.sessionId, &dto.GenerateRequest{LastUserMessage: "first"})
	require.NoError(t, err)
	go f.svc.Stream(ctx, first, (&frameRecorder{}).sink)
	time.Sleep(20 * time.Millisecond)

	// The hung run ignores cancellation, so the wait bound trips and the
	// lease is deleted forcibly.
	_, err = f.svc.Begin(ctx, f.userId, f.sessionId, &dto.GenerateRequest{LastUserMessage: "second"})
	require.ErrorIs(t, err, stream.ErrStopInProgress)

	// The forced release unblocked the session for the next attempt.
	third, err := f.svc.Begin(ctx, f.userId, f.sessionId, &dto.GenerateRequest{LastUserMessage: "third"})
	require.NoError(t, err)
	assert.Equal(t, f.sessionId, third.SessionId())
}

func TestEngineFailurePersistsAndReportsError(t *testing.T) {
	f := newFixture(t, enginetest.Script{
		Chunks: []string{"partial "},
		Err:    errors.New("model backend rate limited"),
	}, fastTrackerConfig())
	ctx := context.Background()

	gen, err := f.svc.Begin(ctx, f.userId, f.sessionId, &dto.GenerateRequest{LastUserMessage: "go"})
	require.NoError(t, err)

	recorder := &frameRecorder{}
	err = f.svc.Stream(ctx, gen, recorder.sink)
	require.ErrorIs(t, err, stream.ErrEngineFailed)

	frames := recorder.all()
	require.Len(t, frames, 2)
	assert.Equal(t, "error", frames[1].Type)
	assert.Contains(t, frames[1].Error, "rate limited")

	// Output produced before the failure is not lost.
	messages := f.store.allMessages()
	require.Len(t, messages, 2)
	assert.Equal(t, "partial ", messages[1].Content)

	types := f.publisher.types()
	require.Len(t, types, 2)
	assert.Equal(t, events.TypeStreamFailed, types[1])

	state, err := f.tracker.CurrentState(ctx, f.sessionId)
	require.NoError(t, err)
	assert.Equal(t, stream.StateIdle, state)
}

func TestClientDisconnectCancelsAndPersists(t *testing.T) {
	f := newFixture(t, enginetest.Script{
		Chunks:     manyChunks(200),
		ChunkDelay: 2 * time.Millisecond,
	}, fastTrackerConfig())
	ctx := context.Background()

	gen, err := f.svc.Begin(ctx, f.userId, f.sessionId, &dto.GenerateRequest{LastUserMessage: "go"})
	require.NoError(t, err)

	recorder := &frameRecorder{failAfter: 3}
	require.NoError(t, f.svc.Stream(ctx, gen, recorder.sink))

	// Everything produced up to the cancellation point was persisted, even
	// though the client saw only three frames.
	messages := f.store.allMessages()
	assert.GreaterOrEqual(t, len(messages)-1, 3)
	assert.Less(t, len(messages)-1, 200)

	state, err := f.tracker.CurrentState(ctx, f.sessionId)
	require.NoError(t, err)
	assert.Equal(t, stream.StateIdle, state)
}

func TestStopOnIdleSessionIsNoOp(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, fastTrackerConfig())
	require.NoError(t, f.svc.Stop(context.Background(), f.userId, f.sessionId))
}

func TestBeginRejectsForeignSession(t *testing.T) {
	f := newFixture(t, enginetest.Script{Chunks: []string{"x"}}, fastTrackerConfig())
	_, err := f.svc.Begin(context.Background(), uuid.New(), f.sessionId, &dto.GenerateRequest{LastUserMessage: "go"})
	require.Error(t, err)
	assert.Equal(t, 0, f.engine.Starts())
}

func manyChunks(n int) []string {
	chunks := make([]string, n)
	for i := range chunks {
		chunks[i] = "chunk "
	}
	return chunks
}
