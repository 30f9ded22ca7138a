package memstore

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/grimoire-api/internal/store"
)

// MentionStatsStore is an in-memory implementation of store.MentionStatsStore.
type MentionStatsStore struct {
	mu    sync.Mutex
	stats map[uuid.UUID]*store.MentionStat
}

// NewMentionStatsStore creates an empty in-memory mention stats store.
func NewMentionStatsStore() *MentionStatsStore {
	return &MentionStatsStore{
		stats: make(map[uuid.UUID]*store.MentionStat),
	}
}

// RecordMentions implements store.MentionStatsStore.
func (s *MentionStatsStore) RecordMentions(ctx context.Context, sourceCardID uuid.UUID, mentionedIDs []uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range mentionedIDs {
		stat, ok := s.stats[id]
		if !ok {
			stat = &store.MentionStat{
				CardID:           id,
				FirstMentionedAt: now,
			}
			s.stats[id] = stat
		}
		stat.MentionCount++
		stat.LastMentionedAt = now
	}
	return nil
}

// Top implements store.MentionStatsStore.
func (s *MentionStatsStore) Top(ctx context.Context, n int) ([]store.MentionStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]store.MentionStat, 0, len(s.stats))
	for _, stat := range s.stats {
		all = append(all, *stat)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].MentionCount != all[j].MentionCount {
			return all[i].MentionCount > all[j].MentionCount
		}
		return all[i].CardID.String() < all[j].CardID.String()
	})

	if n > 0 && n < len(all) {
		all = all[:n]
	}
	return all, nil
}

// GetByCardID implements store.MentionStatsStore.
func (s *MentionStatsStore) GetByCardID(ctx context.Context, cardID uuid.UUID) (*store.MentionStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stat, ok := s.stats[cardID]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *stat
	return &c, nil
}

// WithTx implements store.MentionStatsStore.
func (s *MentionStatsStore) WithTx(tx *sql.Tx) store.MentionStatsStore {
	return s
}
