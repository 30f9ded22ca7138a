package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/grimoire-api/internal/domain"
)

// GuideStore defines the persistence contract for generated guides.
type GuideStore interface {
	// Upsert stores the guide, replacing any existing guide for the same
	// card. Replacement only happens through operator-triggered
	// re-analysis; the dispatcher's submit path never overwrites a guide
	// for a job that is already done.
	Upsert(ctx context.Context, guide *domain.Guide) error

	// GetByCardID retrieves the guide for the given card.
	// Returns ErrGuideNotFound if no guide has been committed yet.
	GetByCardID(ctx context.Context, cardID uuid.UUID) (*domain.Guide, error)

	// CountAll returns the number of committed guides.
	CountAll(ctx context.Context) (int64, error)

	// WithTx returns a new store instance bound to the given transaction.
	WithTx(tx *sql.Tx) GuideStore
}
