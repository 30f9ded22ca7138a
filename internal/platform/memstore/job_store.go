package memstore

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/grimoire-api/internal/domain"
	"github.com/phrazzld/grimoire-api/internal/store"
)

// JobStore is an in-memory implementation of store.JobStore. All
// transitions happen under one mutex, which makes each of them the atomic
// check-and-set the backlog contract requires.
type JobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.AnalysisJob
}

// NewJobStore creates an empty in-memory backlog.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[uuid.UUID]*domain.AnalysisJob),
	}
}

// Enqueue implements store.JobStore.
func (s *JobStore) Enqueue(ctx context.Context, cardID uuid.UUID, now time.Time) error {
	if cardID == uuid.Nil {
		return store.ErrInvalidEntity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[cardID]; ok {
		if existing.State != domain.JobStateFailed {
			return store.ErrJobAlreadyExists
		}
		// A failed job is revived with a fresh attempt budget.
		existing.State = domain.JobStatePending
		existing.Attempts = 0
		existing.LastError = ""
		existing.ClaimedBy = ""
		existing.ClaimedAt = time.Time{}
		existing.LeaseExpiresAt = time.Time{}
		existing.EnqueuedAt = now
		existing.UpdatedAt = now
		return nil
	}

	s.jobs[cardID] = &domain.AnalysisJob{
		CardID:     cardID,
		State:      domain.JobStatePending,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
	return nil
}

// Claim implements store.JobStore. Selection order is pending jobs oldest
// enqueued first, then expired-lease claimed jobs oldest lease first; card
// ID breaks timestamp ties so selection is a total order.
func (s *JobStore) Claim(ctx context.Context, workerID string, lease time.Duration, now time.Time) (*domain.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.selectClaimable(now)
	if job == nil {
		return nil, store.ErrNoJobAvailable
	}

	job.State = domain.JobStateClaimed
	job.ClaimedBy = workerID
	job.ClaimedAt = now
	job.LeaseExpiresAt = now.Add(lease)
	job.Attempts++
	job.UpdatedAt = now

	return copyJob(job), nil
}

func (s *JobStore) selectClaimable(now time.Time) *domain.AnalysisJob {
	var best *domain.AnalysisJob
	for _, j := range s.jobs {
		if j.State != domain.JobStatePending {
			continue
		}
		if best == nil || jobLess(j.EnqueuedAt, j.CardID, best.EnqueuedAt, best.CardID) {
			best = j
		}
	}
	if best != nil {
		return best
	}

	for _, j := range s.jobs {
		if !j.LeaseExpired(now) {
			continue
		}
		if best == nil || jobLess(j.LeaseExpiresAt, j.CardID, best.LeaseExpiresAt, best.CardID) {
			best = j
		}
	}
	return best
}

// Renew implements store.JobStore. The holder may renew even if the lease
// just lapsed: until someone actually re-claims the job, the original
// claim stands.
func (s *JobStore) Renew(ctx context.Context, cardID uuid.UUID, workerID string, lease time.Duration, now time.Time) (*domain.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[cardID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	if job.State != domain.JobStateClaimed || job.ClaimedBy != workerID {
		return nil, store.ErrNotJobOwner
	}

	job.LeaseExpiresAt = now.Add(lease)
	job.UpdatedAt = now
	return copyJob(job), nil
}

// MarkDone implements store.JobStore.
func (s *JobStore) MarkDone(ctx context.Context, cardID uuid.UUID, workerID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[cardID]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.State == domain.JobStateDone {
		return store.ErrJobAlreadyDone
	}
	if job.State != domain.JobStateClaimed || job.ClaimedBy != workerID {
		return store.ErrNotJobOwner
	}

	job.State = domain.JobStateDone
	job.ClaimedBy = ""
	job.LastError = ""
	job.UpdatedAt = now
	return nil
}

// Fail implements store.JobStore.
func (s *JobStore) Fail(ctx context.Context, cardID uuid.UUID, workerID, cause string, permanent bool, maxAttempts int, now time.Time) (*domain.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[cardID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	if job.State == domain.JobStateDone {
		return nil, store.ErrJobAlreadyDone
	}
	if job.State != domain.JobStateClaimed || job.ClaimedBy != workerID {
		return nil, store.ErrNotJobOwner
	}

	job.LastError = cause
	job.ClaimedBy = ""
	job.ClaimedAt = time.Time{}
	job.LeaseExpiresAt = time.Time{}
	job.UpdatedAt = now

	if permanent || (maxAttempts > 0 && job.Attempts >= maxAttempts) {
		job.State = domain.JobStateFailed
	} else {
		job.State = domain.JobStatePending
	}

	return copyJob(job), nil
}

// GetByCardID implements store.JobStore.
func (s *JobStore) GetByCardID(ctx context.Context, cardID uuid.UUID) (*domain.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[cardID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return copyJob(job), nil
}

// CountByState implements store.JobStore.
func (s *JobStore) CountByState(ctx context.Context) (map[domain.JobState]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[domain.JobState]int64, 4)
	for _, j := range s.jobs {
		counts[j.State]++
	}
	return counts, nil
}

// Requeue implements store.JobStore.
func (s *JobStore) Requeue(ctx context.Context, cardID uuid.UUID, now time.Time) error {
	return s.operatorReset(cardID, domain.JobStateDone, now)
}

// ResetFailed implements store.JobStore.
func (s *JobStore) ResetFailed(ctx context.Context, cardID uuid.UUID, now time.Time) error {
	return s.operatorReset(cardID, domain.JobStateFailed, now)
}

func (s *JobStore) operatorReset(cardID uuid.UUID, from domain.JobState, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[cardID]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.State != from {
		return store.ErrInvalidEntity
	}

	job.State = domain.JobStatePending
	job.Attempts = 0
	job.LastError = ""
	job.ClaimedBy = ""
	job.ClaimedAt = time.Time{}
	job.LeaseExpiresAt = time.Time{}
	job.EnqueuedAt = now
	job.UpdatedAt = now
	return nil
}

// WithTx implements store.JobStore. The in-memory store has no
// transactions; the same store is returned.
func (s *JobStore) WithTx(tx *sql.Tx) store.JobStore {
	return s
}

// jobLess orders (timestamp, id) pairs: earlier timestamps first, card ID
// as tie-breaker.
func jobLess(t1 time.Time, id1 uuid.UUID, t2 time.Time, id2 uuid.UUID) bool {
	if !t1.Equal(t2) {
		return t1.Before(t2)
	}
	return id1.String() < id2.String()
}

func copyJob(j *domain.AnalysisJob) *domain.AnalysisJob {
	c := *j
	return &c
}
