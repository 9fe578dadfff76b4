package stream_test

import (
	"testing"

	"ai-appgen-be/pkg/stream"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCancelRegistry_InvokeRunsCallback(t *testing.T) {
	registry := stream.NewCancelRegistry()
	sessionID := uuid.New()

	invoked := false
	registry.Register(sessionID, func() { invoked = true })

	found := registry.Invoke(sessionID)
	assert.True(t, found)
	assert.True(t, invoked)
}

func TestCancelRegistry_InvokeWithoutCallbackIsNoop(t *testing.T) {
	registry := stream.NewCancelRegistry()

	// Expected case when the running stream lives in another process.
	found := registry.Invoke(uuid.New())
	assert.False(t, found)
}

func TestCancelRegistry_UnregisterStopsDelivery(t *testing.T) {
	registry := stream.NewCancelRegistry()
	sessionID := uuid.New()

	invoked := false
	registry.Register(sessionID, func() { invoked = true })
	registry.Unregister(sessionID)

	found := registry.Invoke(sessionID)
	assert.False(t, found)
	assert.False(t, invoked)

	// Unregister after normal finish and again via cleanup sweep.
	registry.Unregister(sessionID)
}
