package api

import (
	"time"

	"github.com/phrazzld/grimoire-api/internal/domain"
)

// TokenRequest is the body for exchanging a shared secret for a bearer
// token. WorkerID is the caller-chosen opaque worker identity; for admin
// tokens it names the operator.
type TokenRequest struct {
	WorkerID string `json:"worker_id" validate:"required,min=1,max=128"`
	Secret   string `json:"secret"    validate:"required,min=8"`
	Role     string `json:"role"      validate:"omitempty,oneof=worker admin"`
}

// TokenResponse carries a freshly issued bearer token.
type TokenResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ClaimRequest is the body for claiming a job. LeaseSeconds optionally
// overrides the default lease; zero means use the server default.
type ClaimRequest struct {
	LeaseSeconds int `json:"lease_seconds" validate:"gte=0,lte=86400"`
}

// JobResponse is the wire form of an analysis job.
type JobResponse struct {
	CardID         string    `json:"card_id"`
	State          string    `json:"state"`
	ClaimedBy      string    `json:"claimed_by,omitempty"`
	LeaseExpiresAt time.Time `json:"lease_expires_at,omitempty"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// ClaimResponse is the claim result: the job plus the card snapshot the
// worker generates against.
type ClaimResponse struct {
	Job  JobResponse  `json:"job"`
	Card *domain.Card `json:"card"`
}

// SubmitRequest is the body for submitting a finished guide draft.
type SubmitRequest struct {
	Content   string `json:"content"    validate:"required"`
	ModelName string `json:"model_name" validate:"required,max=128"`
	Lang      string `json:"lang"       validate:"omitempty,max=16"`
}

// SubmitResponse reports the submit outcome: "committed" for a first-time
// commit, "already_done" for an idempotent retry.
type SubmitResponse struct {
	Status string `json:"status"`
}

// FailRequest is the body for reporting a failed attempt.
type FailRequest struct {
	Cause     string `json:"cause"     validate:"required,max=2000"`
	Permanent bool   `json:"permanent"`
}

// CardPayload is one card in an ingestion request.
type CardPayload struct {
	ID            string `json:"id"   validate:"required,uuid"`
	Name          string `json:"name" validate:"required,max=512"`
	SetCode       string `json:"set_code"`
	SetName       string `json:"set_name"`
	Rarity        string `json:"rarity"`
	TypeLine      string `json:"type_line"`
	ManaCost      string `json:"mana_cost"`
	OracleText    string `json:"oracle_text"`
	FlavorText    string `json:"flavor_text"`
	Power         string `json:"power"`
	Toughness     string `json:"toughness"`
	Lang          string `json:"lang"`
	ImageSmallURL string `json:"image_small_url"`
	ImageURL      string `json:"image_url"`
	ArtCropURL    string `json:"art_crop_url"`
}

// IngestRequest is the body for bulk card ingestion.
type IngestRequest struct {
	Cards []CardPayload `json:"cards" validate:"required,min=1,max=1000,dive"`
}

// jobToResponse converts a domain.AnalysisJob to its wire form.
func jobToResponse(job *domain.AnalysisJob) JobResponse {
	return JobResponse{
		CardID:         job.CardID.String(),
		State:          string(job.State),
		ClaimedBy:      job.ClaimedBy,
		LeaseExpiresAt: job.LeaseExpiresAt,
		Attempts:       job.Attempts,
		LastError:      job.LastError,
		EnqueuedAt:     job.EnqueuedAt,
	}
}
