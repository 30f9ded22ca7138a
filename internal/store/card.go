package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/grimoire-api/internal/domain"
)

// EntityRef is the projection of a card used to build the mention index:
// just enough to recognize a name in text and render the cross-reference.
type EntityRef struct {
	CardID   uuid.UUID
	Name     string
	ImageURL string
}

// CardStore defines the persistence contract for catalog cards.
type CardStore interface {
	// Upsert creates the card or replaces its mutable fields if a card
	// with the same ID already exists. The card must pass validation.
	Upsert(ctx context.Context, card *domain.Card) error

	// GetByID retrieves a card by its unique ID.
	// Returns ErrCardNotFound if the card does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error)

	// ListEntityRefs returns the name/image projection of every card,
	// used to rebuild the mention index.
	ListEntityRefs(ctx context.Context) ([]EntityRef, error)

	// CountAll returns the total number of cards in the catalog.
	CountAll(ctx context.Context) (int64, error)

	// WithTx returns a new store instance bound to the given transaction.
	WithTx(tx *sql.Tx) CardStore
}
