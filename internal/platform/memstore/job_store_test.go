package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/grimoire-api/internal/domain"
	"github.com/phrazzld/grimoire-api/internal/store"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestJobStore_EnqueueAndClaim(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	cardID := uuid.New()

	require.NoError(t, s.Enqueue(ctx, cardID, t0))

	job, err := s.Claim(ctx, "worker-1", 10*time.Minute, t0)
	require.NoError(t, err)
	assert.Equal(t, cardID, job.CardID)
	assert.Equal(t, domain.JobStateClaimed, job.State)
	assert.Equal(t, "worker-1", job.ClaimedBy)
	assert.Equal(t, t0.Add(10*time.Minute), job.LeaseExpiresAt)
	assert.Equal(t, 1, job.Attempts)
}

func TestJobStore_EnqueueDuplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	cardID := uuid.New()

	require.NoError(t, s.Enqueue(ctx, cardID, t0))

	// Pending, claimed, and done jobs all reject re-enqueue.
	err := s.Enqueue(ctx, cardID, t0.Add(time.Minute))
	assert.ErrorIs(t, err, store.ErrJobAlreadyExists)

	_, err = s.Claim(ctx, "worker-1", 10*time.Minute, t0)
	require.NoError(t, err)
	err = s.Enqueue(ctx, cardID, t0.Add(time.Minute))
	assert.ErrorIs(t, err, store.ErrJobAlreadyExists)

	require.NoError(t, s.MarkDone(ctx, cardID, "worker-1", t0.Add(time.Minute)))
	err = s.Enqueue(ctx, cardID, t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, store.ErrJobAlreadyExists)
}

func TestJobStore_EnqueueRevivesFailedJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	cardID := uuid.New()

	require.NoError(t, s.Enqueue(ctx, cardID, t0))
	_, err := s.Claim(ctx, "worker-1", 10*time.Minute, t0)
	require.NoError(t, err)
	_, err = s.Fail(ctx, cardID, "worker-1", "content blocked", true, 5, t0.Add(time.Minute))
	require.NoError(t, err)

	require.NoError(t, s.Enqueue(ctx, cardID, t0.Add(2*time.Minute)))

	job, err := s.GetByCardID(ctx, cardID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatePending, job.State)
	assert.Zero(t, job.Attempts)
	assert.Empty(t, job.LastError)
}

func TestJobStore_ClaimOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()

	first := uuid.New()
	second := uuid.New()
	require.NoError(t, s.Enqueue(ctx, second, t0.Add(time.Minute)))
	require.NoError(t, s.Enqueue(ctx, first, t0))

	job, err := s.Claim(ctx, "worker-1", 10*time.Minute, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first, job.CardID, "oldest enqueued job should be claimed first")

	job, err = s.Claim(ctx, "worker-1", 10*time.Minute, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, second, job.CardID)
}

func TestJobStore_ClaimEmptyBacklog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()

	_, err := s.Claim(ctx, "worker-1", 10*time.Minute, t0)
	assert.ErrorIs(t, err, store.ErrNoJobAvailable)
}

func TestJobStore_ClaimContention(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	cardID := uuid.New()
	require.NoError(t, s.Enqueue(ctx, cardID, t0))

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.Claim(ctx, uuid.NewString(), 10*time.Minute, t0)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var won, empty int
	for err := range results {
		switch {
		case err == nil:
			won++
		default:
			require.ErrorIs(t, err, store.ErrNoJobAvailable)
			empty++
		}
	}

	assert.Equal(t, 1, won, "exactly one concurrent claim must succeed")
	assert.Equal(t, workers-1, empty)
}

func TestJobStore_LeaseExpiryReclaim(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	cardID := uuid.New()
	require.NoError(t, s.Enqueue(ctx, cardID, t0))

	lease := 10 * time.Minute
	_, err := s.Claim(ctx, "worker-1", lease, t0)
	require.NoError(t, err)

	// One instant before expiry the job is still held.
	_, err = s.Claim(ctx, "worker-2", lease, t0.Add(lease).Add(-time.Nanosecond))
	assert.ErrorIs(t, err, store.ErrNoJobAvailable)

	// At expiry it is claimable again and the attempt count grows.
	job, err := s.Claim(ctx, "worker-2", lease, t0.Add(lease))
	require.NoError(t, err)
	assert.Equal(t, "worker-2", job.ClaimedBy)
	assert.Equal(t, 2, job.Attempts)
}

func TestJobStore_ExpiredLeaseOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()

	a := uuid.New()
	b := uuid.New()
	require.NoError(t, s.Enqueue(ctx, a, t0))
	require.NoError(t, s.Enqueue(ctx, b, t0.Add(time.Second)))

	// a is claimed first and its lease expires earlier than b's.
	_, err := s.Claim(ctx, "worker-1", time.Minute, t0)
	require.NoError(t, err)
	_, err = s.Claim(ctx, "worker-1", 2*time.Minute, t0)
	require.NoError(t, err)

	job, err := s.Claim(ctx, "worker-2", time.Minute, t0.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, a, job.CardID, "oldest expired lease should be re-claimed first")
}

func TestJobStore_RenewByOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	cardID := uuid.New()
	require.NoError(t, s.Enqueue(ctx, cardID, t0))
	_, err := s.Claim(ctx, "worker-1", 10*time.Minute, t0)
	require.NoError(t, err)

	job, err := s.Renew(ctx, cardID, "worker-1", 10*time.Minute, t0.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(15*time.Minute), job.LeaseExpiresAt)
}

func TestJobStore_RenewAfterLapseBeforeReclaim(t *testing.T) {
	t.Parallel()

	// A lapsed lease may still be renewed by its holder as long as
	// nobody re-claimed the job in between.
	ctx := context.Background()
	s := NewJobStore()
	cardID := uuid.New()
	require.NoError(t, s.Enqueue(ctx, cardID, t0))
	_, err := s.Claim(ctx, "worker-1", time.Minute, t0)
	require.NoError(t, err)

	job, err := s.Renew(ctx, cardID, "worker-1", time.Minute, t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(11*time.Minute), job.LeaseExpiresAt)
}

func TestJobStore_RenewOwnershipChecks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	cardID := uuid.New()
	require.NoError(t, s.Enqueue(ctx, cardID, t0))
	_, err := s.Claim(ctx, "worker-1", time.Minute, t0)
	require.NoError(t, err)

	_, err = s.Renew(ctx, cardID, "worker-2", time.Minute, t0)
	assert.ErrorIs(t, err, store.ErrNotJobOwner)

	_, err = s.Renew(ctx, uuid.New(), "worker-1", time.Minute, t0)
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}

func TestJobStore_StaleSubmitLoses(t *testing.T) {
	t.Parallel()

	// worker-1's lease expires mid-generation, worker-2 re-claims and
	// submits. worker-1's late submit must fail without clobbering the
	// winner's result.
	ctx := context.Background()
	s := NewJobStore()
	cardID := uuid.New()
	require.NoError(t, s.Enqueue(ctx, cardID, t0))

	lease := time.Minute
	_, err := s.Claim(ctx, "worker-1", lease, t0)
	require.NoError(t, err)

	_, err = s.Claim(ctx, "worker-2", lease, t0.Add(2*time.Minute))
	require.NoError(t, err)

	err = s.MarkDone(ctx, cardID, "worker-1", t0.Add(3*time.Minute))
	assert.ErrorIs(t, err, store.ErrNotJobOwner)

	require.NoError(t, s.MarkDone(ctx, cardID, "worker-2", t0.Add(3*time.Minute)))

	job, err := s.GetByCardID(ctx, cardID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateDone, job.State)
}

func TestJobStore_MarkDoneIdempotentRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	cardID := uuid.New()
	require.NoError(t, s.Enqueue(ctx, cardID, t0))
	_, err := s.Claim(ctx, "worker-1", time.Minute, t0)
	require.NoError(t, err)

	require.NoError(t, s.MarkDone(ctx, cardID, "worker-1", t0))

	err = s.MarkDone(ctx, cardID, "worker-1", t0.Add(time.Second))
	assert.ErrorIs(t, err, store.ErrJobAlreadyDone)
}

func TestJobStore_FailRetryable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	cardID := uuid.New()
	require.NoError(t, s.Enqueue(ctx, cardID, t0))
	_, err := s.Claim(ctx, "worker-1", time.Minute, t0)
	require.NoError(t, err)

	job, err := s.Fail(ctx, cardID, "worker-1", "backend timeout", false, 5, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatePending, job.State)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "backend timeout", job.LastError)
	assert.Empty(t, job.ClaimedBy)
}

func TestJobStore_FailPermanent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	cardID := uuid.New()
	require.NoError(t, s.Enqueue(ctx, cardID, t0))
	_, err := s.Claim(ctx, "worker-1", time.Minute, t0)
	require.NoError(t, err)

	job, err := s.Fail(ctx, cardID, "worker-1", "content blocked", true, 5, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, job.State)

	// Terminal: no longer claimable.
	_, err = s.Claim(ctx, "worker-2", time.Minute, t0.Add(time.Hour))
	assert.ErrorIs(t, err, store.ErrNoJobAvailable)
}

func TestJobStore_AttemptCeiling(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	cardID := uuid.New()
	require.NoError(t, s.Enqueue(ctx, cardID, t0))

	const maxAttempts = 3
	now := t0
	for i := 1; i <= maxAttempts; i++ {
		job, err := s.Claim(ctx, "worker-1", time.Minute, now)
		require.NoError(t, err)
		assert.Equal(t, i, job.Attempts)

		job, err = s.Fail(ctx, cardID, "worker-1", "timeout", false, maxAttempts, now)
		require.NoError(t, err)
		if i < maxAttempts {
			assert.Equal(t, domain.JobStatePending, job.State)
		} else {
			assert.Equal(t, domain.JobStateFailed, job.State, "attempt ceiling should make the job terminal")
		}
		now = now.Add(time.Minute)
	}

	_, err := s.Claim(ctx, "worker-1", time.Minute, now)
	assert.ErrorIs(t, err, store.ErrNoJobAvailable)
}

func TestJobStore_OperatorRequeueAndReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	done := uuid.New()
	failed := uuid.New()

	require.NoError(t, s.Enqueue(ctx, done, t0))
	_, err := s.Claim(ctx, "worker-1", time.Minute, t0)
	require.NoError(t, err)
	require.NoError(t, s.MarkDone(ctx, done, "worker-1", t0))

	require.NoError(t, s.Enqueue(ctx, failed, t0))
	_, err = s.Claim(ctx, "worker-1", time.Minute, t0.Add(time.Second))
	require.NoError(t, err)
	_, err = s.Fail(ctx, failed, "worker-1", "blocked", true, 5, t0)
	require.NoError(t, err)

	// Requeue only applies to done jobs, ResetFailed only to failed ones.
	assert.ErrorIs(t, s.Requeue(ctx, failed, t0), store.ErrInvalidEntity)
	assert.ErrorIs(t, s.ResetFailed(ctx, done, t0), store.ErrInvalidEntity)

	require.NoError(t, s.Requeue(ctx, done, t0.Add(time.Minute)))
	require.NoError(t, s.ResetFailed(ctx, failed, t0.Add(time.Minute)))

	for _, id := range []uuid.UUID{done, failed} {
		job, err := s.GetByCardID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatePending, job.State)
		assert.Zero(t, job.Attempts)
	}
}

func TestJobStore_CountByState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()

	pending := uuid.New()
	claimed := uuid.New()
	require.NoError(t, s.Enqueue(ctx, claimed, t0))
	_, err := s.Claim(ctx, "worker-1", time.Minute, t0)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(ctx, pending, t0.Add(time.Second)))

	counts, err := s.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[domain.JobStatePending])
	assert.Equal(t, int64(1), counts[domain.JobStateClaimed])
	assert.Zero(t, counts[domain.JobStateDone])
}

func TestJobStore_ClaimReturnsCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	cardID := uuid.New()
	require.NoError(t, s.Enqueue(ctx, cardID, t0))

	job, err := s.Claim(ctx, "worker-1", time.Minute, t0)
	require.NoError(t, err)

	job.State = domain.JobStateFailed

	stored, err := s.GetByCardID(ctx, cardID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateClaimed, stored.State, "callers must not be able to mutate stored state")
}
