package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInMemoryEventEmitter_DispatchesToAllHandlers(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEventEmitter(testLogger())

	var got []uuid.UUID
	for i := 0; i < 3; i++ {
		emitter.RegisterHandler(EventHandlerFunc(func(ctx context.Context, e *AnalysisRequestEvent) error {
			got = append(got, e.CardID)
			return nil
		}))
	}

	event := NewAnalysisRequestEvent(uuid.New(), "Lightning Bolt")
	require.NoError(t, emitter.EmitEvent(context.Background(), event))
	assert.Len(t, got, 3)
}

func TestInMemoryEventEmitter_HandlerErrorDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEventEmitter(testLogger())
	sentinel := errors.New("handler exploded")

	var secondRan bool
	emitter.RegisterHandler(EventHandlerFunc(func(ctx context.Context, e *AnalysisRequestEvent) error {
		return sentinel
	}))
	emitter.RegisterHandler(EventHandlerFunc(func(ctx context.Context, e *AnalysisRequestEvent) error {
		secondRan = true
		return nil
	}))

	err := emitter.EmitEvent(context.Background(), NewAnalysisRequestEvent(uuid.New(), "Bolt"))
	assert.ErrorIs(t, err, sentinel, "first error is returned")
	assert.True(t, secondRan, "remaining handlers still run")
}

func TestInMemoryEventEmitter_NoHandlers(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEventEmitter(testLogger())
	assert.NoError(t, emitter.EmitEvent(context.Background(), NewAnalysisRequestEvent(uuid.New(), "Bolt")))
}

func TestNewAnalysisRequestEvent(t *testing.T) {
	t.Parallel()

	cardID := uuid.New()
	event := NewAnalysisRequestEvent(cardID, "Lightning Bolt")

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, cardID, event.CardID)
	assert.Equal(t, "Lightning Bolt", event.CardName)
	assert.False(t, event.CreatedAt.IsZero())
}
