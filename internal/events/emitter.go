package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter dispatches analysis request events to registered
// handlers in process. Handlers run in registration order; one handler's
// failure never keeps the event from the rest.
type InMemoryEventEmitter struct {
	mu       sync.RWMutex
	handlers []EventHandler
	logger   *slog.Logger
}

// NewInMemoryEventEmitter creates an emitter with no handlers registered.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		logger: logger.With("component", "event_emitter"),
	}
}

// RegisterHandler subscribes a handler to all future events.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	e.handlers = append(e.handlers, handler)
	count := len(e.handlers)
	e.mu.Unlock()

	e.logger.Debug("event handler registered", "handler_count", count)
}

// EmitEvent delivers the event to every registered handler and returns
// the first handler error, if any.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *AnalysisRequestEvent) error {
	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	if len(handlers) == 0 {
		e.logger.Warn("event emitted with no handlers registered",
			"event_id", event.ID,
			"card_id", event.CardID)
		return nil
	}

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("event handler failed",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"card_id", event.CardID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
