package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/grimoire-api/internal/store"
)

// MentionStatsStore implements the store.MentionStatsStore interface
// using PostgreSQL.
type MentionStatsStore struct {
	db store.DBTX
}

// NewMentionStatsStore creates a new MentionStatsStore.
func NewMentionStatsStore(db store.DBTX) *MentionStatsStore {
	return &MentionStatsStore{
		db: db,
	}
}

// RecordMentions implements store.MentionStatsStore.
func (s *MentionStatsStore) RecordMentions(ctx context.Context, sourceCardID uuid.UUID, mentionedIDs []uuid.UUID, now time.Time) error {
	if len(mentionedIDs) == 0 {
		return nil
	}

	query := `
		INSERT INTO mention_stats (card_id, mention_count, first_mentioned_at, last_mentioned_at)
		VALUES ($1, 1, $2, $2)
		ON CONFLICT (card_id) DO UPDATE
		SET mention_count = mention_stats.mention_count + 1,
		    last_mentioned_at = $2
	`

	for _, id := range mentionedIDs {
		if id == sourceCardID {
			continue
		}
		if _, err := s.db.ExecContext(ctx, query, id, now); err != nil {
			return fmt.Errorf("failed to record mention: %w", MapError(err))
		}
	}
	return nil
}

// Top implements store.MentionStatsStore.
func (s *MentionStatsStore) Top(ctx context.Context, n int) ([]store.MentionStat, error) {
	query := `
		SELECT card_id, mention_count, first_mentioned_at, last_mentioned_at
		FROM mention_stats
		ORDER BY mention_count DESC, card_id
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query top mentions: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var stats []store.MentionStat
	for rows.Next() {
		var stat store.MentionStat
		if err := rows.Scan(&stat.CardID, &stat.MentionCount, &stat.FirstMentionedAt, &stat.LastMentionedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mention stat row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mention stat rows: %w", err)
	}

	return stats, nil
}

// GetByCardID implements store.MentionStatsStore.
func (s *MentionStatsStore) GetByCardID(ctx context.Context, cardID uuid.UUID) (*store.MentionStat, error) {
	query := `
		SELECT card_id, mention_count, first_mentioned_at, last_mentioned_at
		FROM mention_stats
		WHERE card_id = $1
	`

	var stat store.MentionStat
	err := s.db.QueryRowContext(ctx, query, cardID).Scan(
		&stat.CardID,
		&stat.MentionCount,
		&stat.FirstMentionedAt,
		&stat.LastMentionedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mention stat: %w", MapError(err))
	}

	return &stat, nil
}

// WithTx implements store.MentionStatsStore.
func (s *MentionStatsStore) WithTx(tx *sql.Tx) store.MentionStatsStore {
	return NewMentionStatsStore(tx)
}
