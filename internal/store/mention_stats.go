package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// MentionStat is the aggregate record of how often a card has been named
// inside other cards' guides.
type MentionStat struct {
	CardID           uuid.UUID
	MentionCount     int64
	FirstMentionedAt time.Time
	LastMentionedAt  time.Time
}

// MentionStatsStore accumulates cross-guide mention counts. Recording is
// best-effort bookkeeping on the submit path; it never participates in the
// claim protocol.
type MentionStatsStore interface {
	// RecordMentions increments the mention count of every card in
	// mentionedIDs by one, attributed to the guide of sourceCardID.
	// Self-mentions are the caller's responsibility to exclude.
	RecordMentions(ctx context.Context, sourceCardID uuid.UUID, mentionedIDs []uuid.UUID, now time.Time) error

	// Top returns the n most-mentioned cards, most mentioned first.
	Top(ctx context.Context, n int) ([]MentionStat, error)

	// GetByCardID retrieves the stat row for one card.
	// Returns ErrNotFound if the card has never been mentioned.
	GetByCardID(ctx context.Context, cardID uuid.UUID) (*MentionStat, error)

	// WithTx returns a new store instance bound to the given transaction.
	WithTx(tx *sql.Tx) MentionStatsStore
}
