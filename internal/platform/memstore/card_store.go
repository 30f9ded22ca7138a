package memstore

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/grimoire-api/internal/domain"
	"github.com/phrazzld/grimoire-api/internal/store"
)

// CardStore is an in-memory implementation of store.CardStore.
type CardStore struct {
	mu    sync.RWMutex
	cards map[uuid.UUID]*domain.Card
}

// NewCardStore creates an empty in-memory card store.
func NewCardStore() *CardStore {
	return &CardStore{
		cards: make(map[uuid.UUID]*domain.Card),
	}
}

// Upsert implements store.CardStore.
func (s *CardStore) Upsert(ctx context.Context, card *domain.Card) error {
	if err := card.Validate(); err != nil {
		return store.ErrInvalidEntity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *card
	s.cards[card.ID] = &c
	return nil
}

// GetByID implements store.CardStore.
func (s *CardStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	card, ok := s.cards[id]
	if !ok {
		return nil, store.ErrCardNotFound
	}
	c := *card
	return &c, nil
}

// ListEntityRefs implements store.CardStore. Refs are returned in card ID
// order so index rebuilds see a stable input.
func (s *CardStore) ListEntityRefs(ctx context.Context) ([]store.EntityRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]store.EntityRef, 0, len(s.cards))
	for _, c := range s.cards {
		refs = append(refs, store.EntityRef{
			CardID:   c.ID,
			Name:     c.Name,
			ImageURL: c.ImageSmallURL,
		})
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].CardID.String() < refs[j].CardID.String()
	})
	return refs, nil
}

// CountAll implements store.CardStore.
func (s *CardStore) CountAll(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.cards)), nil
}

// WithTx implements store.CardStore.
func (s *CardStore) WithTx(tx *sql.Tx) store.CardStore {
	return s
}
