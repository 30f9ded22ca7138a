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

// CardStore implements the store.CardStore interface using PostgreSQL.
type CardStore struct {
	db store.DBTX
}

// NewCardStore creates a new CardStore.
func NewCardStore(db store.DBTX) *CardStore {
	return &CardStore{
		db: db,
	}
}

// Upsert implements store.CardStore.
func (s *CardStore) Upsert(ctx context.Context, card *domain.Card) error {
	if err := card.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO cards (
			id, name, set_code, set_name, rarity, type_line, mana_cost,
			oracle_text, flavor_text, power, toughness, lang,
			image_small_url, image_url, art_crop_url, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    set_code = EXCLUDED.set_code,
		    set_name = EXCLUDED.set_name,
		    rarity = EXCLUDED.rarity,
		    type_line = EXCLUDED.type_line,
		    mana_cost = EXCLUDED.mana_cost,
		    oracle_text = EXCLUDED.oracle_text,
		    flavor_text = EXCLUDED.flavor_text,
		    power = EXCLUDED.power,
		    toughness = EXCLUDED.toughness,
		    lang = EXCLUDED.lang,
		    image_small_url = EXCLUDED.image_small_url,
		    image_url = EXCLUDED.image_url,
		    art_crop_url = EXCLUDED.art_crop_url,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		card.ID,
		card.Name,
		card.SetCode,
		card.SetName,
		card.Rarity,
		card.TypeLine,
		card.ManaCost,
		card.OracleText,
		card.FlavorText,
		card.Power,
		card.Toughness,
		card.Lang,
		card.ImageSmallURL,
		card.ImageURL,
		card.ArtCropURL,
		card.CreatedAt,
		card.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert card: %w", MapError(err))
	}

	return nil
}

// GetByID implements store.CardStore.
func (s *CardStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	query := `
		SELECT id, name, set_code, set_name, rarity, type_line, mana_cost,
		       oracle_text, flavor_text, power, toughness, lang,
		       image_small_url, image_url, art_crop_url, created_at, updated_at
		FROM cards
		WHERE id = $1
	`

	var card domain.Card
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&card.ID,
		&card.Name,
		&card.SetCode,
		&card.SetName,
		&card.Rarity,
		&card.TypeLine,
		&card.ManaCost,
		&card.OracleText,
		&card.FlavorText,
		&card.Power,
		&card.Toughness,
		&card.Lang,
		&card.ImageSmallURL,
		&card.ImageURL,
		&card.ArtCropURL,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to get card: %w", MapError(err))
	}

	return &card, nil
}

// ListEntityRefs implements store.CardStore. Results are ordered by ID so
// index rebuilds always see the same input order.
func (s *CardStore) ListEntityRefs(ctx context.Context) ([]store.EntityRef, error) {
	query := `SELECT id, name, image_small_url FROM cards ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity refs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var refs []store.EntityRef
	for rows.Next() {
		var ref store.EntityRef
		if err := rows.Scan(&ref.CardID, &ref.Name, &ref.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan entity ref row: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity ref rows: %w", err)
	}

	return refs, nil
}

// CountAll implements store.CardStore.
func (s *CardStore) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", MapError(err))
	}
	return count, nil
}

// WithTx implements store.CardStore.
func (s *CardStore) WithTx(tx *sql.Tx) store.CardStore {
	return NewCardStore(tx)
}
