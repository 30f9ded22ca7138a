package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/grimoire-api/internal/domain"
	"github.com/phrazzld/grimoire-api/internal/store"
)

// GuideStore implements the store.GuideStore interface using PostgreSQL.
type GuideStore struct {
	db store.DBTX
}

// NewGuideStore creates a new GuideStore.
func NewGuideStore(db store.DBTX) *GuideStore {
	return &GuideStore{
		db: db,
	}
}

// Upsert implements store.GuideStore.
func (s *GuideStore) Upsert(ctx context.Context, guide *domain.Guide) error {
	if err := guide.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO guides (
			card_id, content, model_name, lang, word_count,
			generated_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (card_id) DO UPDATE
		SET content = EXCLUDED.content,
		    model_name = EXCLUDED.model_name,
		    lang = EXCLUDED.lang,
		    word_count = EXCLUDED.word_count,
		    generated_at = EXCLUDED.generated_at,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		guide.CardID,
		guide.Content,
		guide.ModelName,
		guide.Lang,
		guide.WordCount,
		guide.GeneratedAt,
		guide.CreatedAt,
		guide.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert guide: %w", MapError(err))
	}

	return nil
}

// GetByCardID implements store.GuideStore.
func (s *GuideStore) GetByCardID(ctx context.Context, cardID uuid.UUID) (*domain.Guide, error) {
	query := `
		SELECT card_id, content, model_name, lang, word_count,
		       generated_at, created_at, updated_at
		FROM guides
		WHERE card_id = $1
	`

	var guide domain.Guide
	err := s.db.QueryRowContext(ctx, query, cardID).Scan(
		&guide.CardID,
		&guide.Content,
		&guide.ModelName,
		&guide.Lang,
		&guide.WordCount,
		&guide.GeneratedAt,
		&guide.CreatedAt,
		&guide.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrGuideNotFound
		}
		return nil, fmt.Errorf("failed to get guide: %w", MapError(err))
	}

	return &guide, nil
}

// CountAll implements store.GuideStore.
func (s *GuideStore) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guides`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count guides: %w", MapError(err))
	}
	return count, nil
}

// WithTx implements store.GuideStore.
func (s *GuideStore) WithTx(tx *sql.Tx) store.GuideStore {
	return NewGuideStore(tx)
}
