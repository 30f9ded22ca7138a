package memstore

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/grimoire-api/internal/domain"
	"github.com/phrazzld/grimoire-api/internal/store"
)

// GuideStore is an in-memory implementation of store.GuideStore.
type GuideStore struct {
	mu     sync.RWMutex
	guides map[uuid.UUID]*domain.Guide
}

// NewGuideStore creates an empty in-memory guide store.
func NewGuideStore() *GuideStore {
	return &GuideStore{
		guides: make(map[uuid.UUID]*domain.Guide),
	}
}

// Upsert implements store.GuideStore.
func (s *GuideStore) Upsert(ctx context.Context, guide *domain.Guide) error {
	if err := guide.Validate(); err != nil {
		return store.ErrInvalidEntity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g := *guide
	s.guides[guide.CardID] = &g
	return nil
}

// GetByCardID implements store.GuideStore.
func (s *GuideStore) GetByCardID(ctx context.Context, cardID uuid.UUID) (*domain.Guide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guide, ok := s.guides[cardID]
	if !ok {
		return nil, store.ErrGuideNotFound
	}
	g := *guide
	return &g, nil
}

// CountAll implements store.GuideStore.
func (s *GuideStore) CountAll(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.guides)), nil
}

// WithTx implements store.GuideStore.
func (s *GuideStore) WithTx(tx *sql.Tx) store.GuideStore {
	return s
}
