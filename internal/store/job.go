package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/grimoire-api/internal/domain"
)

// JobStore is the backlog of analysis jobs. Every state transition it
// performs is an atomic check-and-set keyed by card ID: two concurrent
// claims on the same job must never both succeed, and a submit or renew
// from a superseded lease holder must fail with ErrNotJobOwner. No
// cross-job locking is required since jobs are independent.
//
// The current time is passed explicitly so lease arithmetic is
// deterministic under test.
type JobStore interface {
	// Enqueue creates a pending job for the card. If a job already exists
	// in pending, claimed, or done state it returns ErrJobAlreadyExists;
	// a failed job is revived to pending with a fresh attempt budget.
	Enqueue(ctx context.Context, cardID uuid.UUID, now time.Time) error

	// Claim atomically selects one claimable job, marks it claimed by
	// workerID with a lease expiring at now+lease, and increments its
	// attempt count. Selection order is pending jobs oldest-enqueued
	// first, then expired-lease claimed jobs oldest-lease first.
	// Returns ErrNoJobAvailable if nothing qualifies.
	Claim(ctx context.Context, workerID string, lease time.Duration, now time.Time) (*domain.AnalysisJob, error)

	// Renew extends the lease on a claimed job to now+lease. Returns
	// ErrNotJobOwner if the job is not currently claimed by workerID,
	// ErrJobNotFound if no job exists for the card.
	Renew(ctx context.Context, cardID uuid.UUID, workerID string, lease time.Duration, now time.Time) (*domain.AnalysisJob, error)

	// MarkDone transitions a job claimed by workerID to done, clearing
	// the claim. Returns ErrJobAlreadyDone if the job is already done
	// (idempotent submit retry), ErrNotJobOwner if another worker holds
	// the claim, ErrJobNotFound if no job exists.
	MarkDone(ctx context.Context, cardID uuid.UUID, workerID string, now time.Time) error

	// Fail records a failed attempt by the claim holder. The job reverts
	// to pending for retry unless permanent is set or the attempt count
	// has reached maxAttempts, in which case it becomes failed (terminal).
	// Ownership rules match MarkDone.
	Fail(ctx context.Context, cardID uuid.UUID, workerID, cause string, permanent bool, maxAttempts int, now time.Time) (*domain.AnalysisJob, error)

	// GetByCardID retrieves the job for the given card.
	// Returns ErrJobNotFound if it does not exist.
	GetByCardID(ctx context.Context, cardID uuid.UUID) (*domain.AnalysisJob, error)

	// CountByState returns the number of jobs in each state.
	CountByState(ctx context.Context) (map[domain.JobState]int64, error)

	// Requeue is the operator-triggered re-analysis: it moves a done job
	// back to pending with a fresh attempt budget. Returns ErrJobNotFound
	// if no job exists, ErrInvalidEntity if the job is not done.
	Requeue(ctx context.Context, cardID uuid.UUID, now time.Time) error

	// ResetFailed is the operator reset: it moves a failed job back to
	// pending with a fresh attempt budget. Returns ErrJobNotFound if no
	// job exists, ErrInvalidEntity if the job is not failed.
	ResetFailed(ctx context.Context, cardID uuid.UUID, now time.Time) error

	// WithTx returns a new store instance bound to the given transaction.
	WithTx(tx *sql.Tx) JobStore
}
