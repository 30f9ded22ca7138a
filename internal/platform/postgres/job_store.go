package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/grimoire-api/internal/domain"
	"github.com/phrazzld/grimoire-api/internal/platform/logger"
	"github.com/phrazzld/grimoire-api/internal/store"
)

// JobStore implements the store.JobStore interface using PostgreSQL.
type JobStore struct {
	db store.DBTX
}

// NewJobStore creates a new JobStore.
func NewJobStore(db store.DBTX) *JobStore {
	return &JobStore{
		db: db,
	}
}

// jobColumns is the scan list shared by every query returning a job row.
const jobColumns = `card_id, state, claimed_by, claimed_at, lease_expires_at,
	attempts, last_error, enqueued_at, updated_at`

// Enqueue implements store.JobStore. A failed job is revived in place;
// any other existing job makes the insert a no-op, reported as
// ErrJobAlreadyExists.
func (s *JobStore) Enqueue(ctx context.Context, cardID uuid.UUID, now time.Time) error {
	query := `
		INSERT INTO analysis_jobs (card_id, state, attempts, enqueued_at, updated_at)
		VALUES ($1, 'pending', 0, $2, $2)
		ON CONFLICT (card_id) DO UPDATE
		SET state = 'pending',
		    attempts = 0,
		    last_error = '',
		    claimed_by = '',
		    claimed_at = NULL,
		    lease_expires_at = NULL,
		    enqueued_at = $2,
		    updated_at = $2
		WHERE analysis_jobs.state = 'failed'
	`

	result, err := s.db.ExecContext(ctx, query, cardID, now)
	if err != nil {
		return fmt.Errorf("failed to enqueue analysis job: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrJobAlreadyExists
	}
	return nil
}

// Claim implements store.JobStore. The candidate selection and the state
// transition happen in one statement; FOR UPDATE SKIP LOCKED makes
// concurrent claimers pick disjoint rows instead of blocking on or
// double-claiming the same one.
func (s *JobStore) Claim(ctx context.Context, workerID string, lease time.Duration, now time.Time) (*domain.AnalysisJob, error) {
	log := logger.FromContext(ctx)

	query := `
		WITH candidate AS (
			SELECT card_id
			FROM analysis_jobs
			WHERE state = 'pending'
			   OR (state = 'claimed' AND lease_expires_at <= $3)
			ORDER BY
				CASE WHEN state = 'pending' THEN 0 ELSE 1 END,
				CASE WHEN state = 'pending' THEN enqueued_at ELSE lease_expires_at END,
				card_id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE analysis_jobs j
		SET state = 'claimed',
		    claimed_by = $1,
		    claimed_at = $3,
		    lease_expires_at = $2,
		    attempts = j.attempts + 1,
		    updated_at = $3
		FROM candidate
		WHERE j.card_id = candidate.card_id
		RETURNING ` + prefixColumns("j") + `
	`

	row := s.db.QueryRowContext(ctx, query, workerID, now.Add(lease), now)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoJobAvailable
		}
		log.Error("failed to claim analysis job",
			"worker_id", workerID,
			"error", err)
		return nil, fmt.Errorf("failed to claim analysis job: %w", MapError(err))
	}

	return job, nil
}

// Renew implements store.JobStore.
func (s *JobStore) Renew(ctx context.Context, cardID uuid.UUID, workerID string, lease time.Duration, now time.Time) (*domain.AnalysisJob, error) {
	query := `
		UPDATE analysis_jobs
		SET lease_expires_at = $3, updated_at = $4
		WHERE card_id = $1 AND state = 'claimed' AND claimed_by = $2
		RETURNING ` + jobColumns

	row := s.db.QueryRowContext(ctx, query, cardID, workerID, now.Add(lease), now)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.ownershipError(ctx, cardID)
		}
		return nil, fmt.Errorf("failed to renew lease: %w", MapError(err))
	}

	return job, nil
}

// MarkDone implements store.JobStore.
func (s *JobStore) MarkDone(ctx context.Context, cardID uuid.UUID, workerID string, now time.Time) error {
	query := `
		UPDATE analysis_jobs
		SET state = 'done', claimed_by = '', last_error = '', updated_at = $3
		WHERE card_id = $1 AND state = 'claimed' AND claimed_by = $2
	`

	result, err := s.db.ExecContext(ctx, query, cardID, workerID, now)
	if err != nil {
		return fmt.Errorf("failed to mark job done: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return s.ownershipError(ctx, cardID)
	}
	return nil
}

// Fail implements store.JobStore. The attempt-ceiling decision is taken
// inside the statement so the check and the transition are one atomic
// step.
func (s *JobStore) Fail(ctx context.Context, cardID uuid.UUID, workerID, cause string, permanent bool, maxAttempts int, now time.Time) (*domain.AnalysisJob, error) {
	query := `
		UPDATE analysis_jobs
		SET state = CASE
				WHEN $3 OR ($4 > 0 AND attempts >= $4) THEN 'failed'
				ELSE 'pending'
			END,
		    last_error = $5,
		    claimed_by = '',
		    claimed_at = NULL,
		    lease_expires_at = NULL,
		    updated_at = $6
		WHERE card_id = $1 AND state = 'claimed' AND claimed_by = $2
		RETURNING ` + jobColumns

	row := s.db.QueryRowContext(ctx, query, cardID, workerID, permanent, maxAttempts, cause, now)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.ownershipError(ctx, cardID)
		}
		return nil, fmt.Errorf("failed to record job failure: %w", MapError(err))
	}

	return job, nil
}

// GetByCardID implements store.JobStore.
func (s *JobStore) GetByCardID(ctx context.Context, cardID uuid.UUID) (*domain.AnalysisJob, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE card_id = $1`

	row := s.db.QueryRowContext(ctx, query, cardID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get analysis job: %w", MapError(err))
	}

	return job, nil
}

// CountByState implements store.JobStore.
func (s *JobStore) CountByState(ctx context.Context) (map[domain.JobState]int64, error) {
	query := `SELECT state, COUNT(*) FROM analysis_jobs GROUP BY state`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by state: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.JobState]int64, 4)
	for rows.Next() {
		var state domain.JobState
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count row: %w", err)
		}
		counts[state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job count rows: %w", err)
	}

	return counts, nil
}

// Requeue implements store.JobStore.
func (s *JobStore) Requeue(ctx context.Context, cardID uuid.UUID, now time.Time) error {
	return s.operatorReset(ctx, cardID, domain.JobStateDone, now)
}

// ResetFailed implements store.JobStore.
func (s *JobStore) ResetFailed(ctx context.Context, cardID uuid.UUID, now time.Time) error {
	return s.operatorReset(ctx, cardID, domain.JobStateFailed, now)
}

func (s *JobStore) operatorReset(ctx context.Context, cardID uuid.UUID, from domain.JobState, now time.Time) error {
	query := `
		UPDATE analysis_jobs
		SET state = 'pending',
		    attempts = 0,
		    last_error = '',
		    claimed_by = '',
		    claimed_at = NULL,
		    lease_expires_at = NULL,
		    enqueued_at = $3,
		    updated_at = $3
		WHERE card_id = $1 AND state = $2
	`

	result, err := s.db.ExecContext(ctx, query, cardID, from, now)
	if err != nil {
		return fmt.Errorf("failed to reset analysis job: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := s.GetByCardID(ctx, cardID); err != nil {
			return err
		}
		return fmt.Errorf("%w: job not in %s state", store.ErrInvalidEntity, from)
	}
	return nil
}

// WithTx implements store.JobStore.
func (s *JobStore) WithTx(tx *sql.Tx) store.JobStore {
	return NewJobStore(tx)
}

// ownershipError disambiguates a zero-row ownership-guarded update: the
// job may be gone, already done (benign for submit retries), or held by
// someone else.
func (s *JobStore) ownershipError(ctx context.Context, cardID uuid.UUID) error {
	job, err := s.GetByCardID(ctx, cardID)
	if err != nil {
		return err
	}
	if job.State == domain.JobStateDone {
		return store.ErrJobAlreadyDone
	}
	return store.ErrNotJobOwner
}

// scanJob scans one job row.
func scanJob(row *sql.Row) (*domain.AnalysisJob, error) {
	var job domain.AnalysisJob
	var claimedAt, leaseExpiresAt sql.NullTime

	err := row.Scan(
		&job.CardID,
		&job.State,
		&job.ClaimedBy,
		&claimedAt,
		&leaseExpiresAt,
		&job.Attempts,
		&job.LastError,
		&job.EnqueuedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if claimedAt.Valid {
		job.ClaimedAt = claimedAt.Time
	}
	if leaseExpiresAt.Valid {
		job.LeaseExpiresAt = leaseExpiresAt.Time
	}

	return &job, nil
}

// prefixColumns qualifies the job column list with a table alias for
// queries where the bare names would be ambiguous.
func prefixColumns(alias string) string {
	return alias + `.card_id, ` + alias + `.state, ` + alias + `.claimed_by, ` +
		alias + `.claimed_at, ` + alias + `.lease_expires_at, ` + alias + `.attempts, ` +
		alias + `.last_error, ` + alias + `.enqueued_at, ` + alias + `.updated_at`
}
