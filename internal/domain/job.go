package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobState represents the lifecycle state of an analysis job.
type JobState string

// Possible job state values
const (
	JobStatePending JobState = "pending"
	JobStateClaimed JobState = "claimed"
	JobStateDone    JobState = "done"
	JobStateFailed  JobState = "failed"
)

// Job-specific validation errors
var (
	ErrJobCardIDEmpty = errors.New("job card ID cannot be empty")
)

// AnalysisJob tracks the production of one card's guide through the claim
// protocol. Lifecycle rules:
//
//	pending -> claimed          via Claim (lease granted)
//	claimed -> pending          via Fail (retryable) or lease expiry + re-claim
//	claimed -> done             via Submit from the current lease holder
//	claimed -> failed           via Fail (permanent or attempts exhausted)
//	done    -> pending          only via operator re-analysis
//	failed  -> pending          only via operator reset
//
// At most one worker holds the claim at any instant; every claim increments
// Attempts. The row is never deleted, only superseded.
type AnalysisJob struct {
	CardID         uuid.UUID `json:"card_id"`
	State          JobState  `json:"state"`
	ClaimedBy      string    `json:"claimed_by,omitempty"`
	ClaimedAt      time.Time `json:"claimed_at,omitempty"`
	LeaseExpiresAt time.Time `json:"lease_expires_at,omitempty"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewAnalysisJob creates a pending job for the given card.
// Returns an error if validation fails.
func NewAnalysisJob(cardID uuid.UUID) (*AnalysisJob, error) {
	now := time.Now().UTC()
	job := &AnalysisJob{
		CardID:     cardID,
		State:      JobStatePending,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the AnalysisJob has valid data.
// Returns an error if any field fails validation.
func (j *AnalysisJob) Validate() error {
	if j.CardID == uuid.Nil {
		return ErrJobCardIDEmpty
	}

	if !isValidJobState(j.State) {
		return ErrInvalidJobState
	}

	return nil
}

// Terminal reports whether the job is in a state from which no
// claim-driven transition occurs.
func (j *AnalysisJob) Terminal() bool {
	return j.State == JobStateDone || j.State == JobStateFailed
}

// LeaseExpired reports whether the job is claimed and its lease has lapsed
// as of the given instant. A job with an expired lease is eligible for
// re-claim but remains owned until someone actually re-claims it.
func (j *AnalysisJob) LeaseExpired(now time.Time) bool {
	return j.State == JobStateClaimed && !j.LeaseExpiresAt.After(now)
}

// isValidJobState checks if the given state is a valid JobState.
func isValidJobState(state JobState) bool {
	switch state {
	case JobStatePending, JobStateClaimed, JobStateDone, JobStateFailed:
		return true
	default:
		return false
	}
}
