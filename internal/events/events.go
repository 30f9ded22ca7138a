// Package events provides the in-process event plumbing that decouples
// catalog ingestion from the backlog and the mention index: ingesting a
// card without a guide emits an analysis request, and the registered
// handlers enqueue the job and invalidate the index without the catalog
// service knowing either exists.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AnalysisRequestEvent signals that a card entered the catalog without a
// committed guide and should be analyzed.
type AnalysisRequestEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// CardID identifies the card needing analysis
	CardID uuid.UUID `json:"card_id"`

	// CardName is carried for logging; handlers must not rely on it
	CardName string `json:"card_name"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewAnalysisRequestEvent creates a new AnalysisRequestEvent for the given card.
func NewAnalysisRequestEvent(cardID uuid.UUID, cardName string) *AnalysisRequestEvent {
	return &AnalysisRequestEvent{
		ID:        uuid.New(),
		CardID:    cardID,
		CardName:  cardName,
		CreatedAt: time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *AnalysisRequestEvent) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event *AnalysisRequestEvent) error

// HandleEvent implements EventHandler.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *AnalysisRequestEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *AnalysisRequestEvent) error
}
