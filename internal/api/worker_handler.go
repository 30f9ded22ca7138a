package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/grimoire-api/internal/api/middleware"
	"github.com/phrazzld/grimoire-api/internal/api/shared"
	"github.com/phrazzld/grimoire-api/internal/dispatch"
	"github.com/phrazzld/grimoire-api/internal/generation"
	"github.com/phrazzld/grimoire-api/internal/platform/logger"
	"github.com/phrazzld/grimoire-api/internal/redact"
	"github.com/phrazzld/grimoire-api/internal/store"
)

// WorkerHandler serves the job protocol endpoints workers drive: claim,
// renew, submit, fail. The worker identity is always taken from the
// authenticated token, never from the request body, so a worker cannot
// act on another worker's claim.
type WorkerHandler struct {
	dispatcher *dispatch.Service
	logger     *slog.Logger
}

// NewWorkerHandler creates a new WorkerHandler.
func NewWorkerHandler(dispatcher *dispatch.Service, logger *slog.Logger) *WorkerHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for WorkerHandler")
	}

	return &WorkerHandler{
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "worker_handler")),
	}
}

// workerIdentity extracts the authenticated worker identity, responding
// with 401 and returning false when it is absent.
func (h *WorkerHandler) workerIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.GetClaims(r)
	if !ok || claims.Subject == "" {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Worker identity not found")
		return "", false
	}
	return claims.Subject, true
}

// cardIDParam parses the {id} URL parameter, responding with 400 and
// returning false on bad input.
func cardIDParam(w http.ResponseWriter, r *http.Request, log *slog.Logger) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		log.Warn("invalid card ID format", slog.String("card_id", raw))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid card ID format")
		return uuid.Nil, false
	}
	return id, true
}

// Claim handles POST /jobs/claim requests.
// An empty backlog responds 204 No Content.
func (h *WorkerHandler) Claim(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	workerID, ok := h.workerIdentity(w, r)
	if !ok {
		return
	}

	// The body is optional; an absent body means default lease.
	var req ClaimRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			log.Warn("invalid request format", slog.String("error", redact.Error(err)))
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
			return
		}
		if err := shared.ValidateRequest(req); err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
			return
		}
	}

	claimed, err := h.dispatcher.Claim(r.Context(), workerID, time.Duration(req.LeaseSeconds)*time.Second)
	if errors.Is(err, store.ErrNoJobAvailable) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ClaimResponse{
		Job:  jobToResponse(claimed.Job),
		Card: claimed.Card,
	})
}

// Renew handles POST /jobs/{id}/renew requests.
func (h *WorkerHandler) Renew(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	workerID, ok := h.workerIdentity(w, r)
	if !ok {
		return
	}

	cardID, ok := cardIDParam(w, r, log)
	if !ok {
		return
	}

	job, err := h.dispatcher.Renew(r.Context(), cardID, workerID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// Submit handles POST /jobs/{id}/submit requests.
// A retry that finds the job already done responds 200 with status
// "already_done"; a submit from a superseded lease holder responds 409.
func (h *WorkerHandler) Submit(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	workerID, ok := h.workerIdentity(w, r)
	if !ok {
		return
	}

	cardID, ok := cardIDParam(w, r, log)
	if !ok {
		return
	}

	var req SubmitRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	draft := &generation.GuideDraft{
		Content:   req.Content,
		ModelName: req.ModelName,
	}

	outcome, err := h.dispatcher.Submit(r.Context(), cardID, workerID, draft, req.Lang)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, SubmitResponse{Status: string(outcome)})
}

// Fail handles POST /jobs/{id}/fail requests.
func (h *WorkerHandler) Fail(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	workerID, ok := h.workerIdentity(w, r)
	if !ok {
		return
	}

	cardID, ok := cardIDParam(w, r, log)
	if !ok {
		return
	}

	var req FailRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	job, err := h.dispatcher.Fail(r.Context(), cardID, workerID, req.Cause, req.Permanent)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}
