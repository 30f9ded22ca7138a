package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/phrazzld/grimoire-api/internal/api/shared"
	"github.com/phrazzld/grimoire-api/internal/catalog"
	"github.com/phrazzld/grimoire-api/internal/dispatch"
	"github.com/phrazzld/grimoire-api/internal/platform/logger"
	"github.com/phrazzld/grimoire-api/internal/redact"
)

// CardHandler serves the catalog surface: ingestion, card and guide reads
// with optional mention resolution, and the operator job controls.
type CardHandler struct {
	catalog    *catalog.Service
	dispatcher *dispatch.Service
	logger     *slog.Logger
}

// NewCardHandler creates a new CardHandler.
func NewCardHandler(
	catalogService *catalog.Service,
	dispatcher *dispatch.Service,
	logger *slog.Logger,
) *CardHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for CardHandler")
	}

	return &CardHandler{
		catalog:    catalogService,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "card_handler")),
	}
}

// Ingest handles POST /cards requests: bulk upsert of catalog cards, with
// analysis requested for every card that has no committed guide yet.
func (h *CardHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req IngestRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	inputs := make([]catalog.CardInput, 0, len(req.Cards))
	for _, c := range req.Cards {
		id, err := uuid.Parse(c.ID)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid card ID format")
			return
		}
		inputs = append(inputs, catalog.CardInput{
			ID:            id,
			Name:          c.Name,
			SetCode:       c.SetCode,
			SetName:       c.SetName,
			Rarity:        c.Rarity,
			TypeLine:      c.TypeLine,
			ManaCost:      c.ManaCost,
			OracleText:    c.OracleText,
			FlavorText:    c.FlavorText,
			Power:         c.Power,
			Toughness:     c.Toughness,
			Lang:          c.Lang,
			ImageSmallURL: c.ImageSmallURL,
			ImageURL:      c.ImageURL,
			ArtCropURL:    c.ArtCropURL,
		})
	}

	result, err := h.catalog.IngestCards(r.Context(), inputs)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// GetCard handles GET /cards/{id} requests.
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, ok := cardIDParam(w, r, log)
	if !ok {
		return
	}

	view, err := h.catalog.GetCard(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, view)
}

// GetGuide handles GET /cards/{id}/guide requests. The resolve query
// parameter, when set to 1 or true, returns content with mention markers
// inserted.
func (h *CardHandler) GetGuide(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, ok := cardIDParam(w, r, log)
	if !ok {
		return
	}

	resolve := false
	switch r.URL.Query().Get("resolve") {
	case "1", "true":
		resolve = true
	}

	view, err := h.catalog.GetGuide(r.Context(), id, resolve)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, view)
}

// Mentions handles GET /cards/{id}/mentions requests.
func (h *CardHandler) Mentions(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, ok := cardIDParam(w, r, log)
	if !ok {
		return
	}

	entries, err := h.catalog.Mentions(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	count, err := h.dispatcher.MentionCount(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]interface{}{
		"card_id":       id.String(),
		"mentions":      entries,
		"mention_count": count,
	})
}

// TopMentions handles GET /stats/top-mentions requests: the cards most
// often named in other cards' guides. The limit query parameter caps the
// listing; default 10, maximum 100.
func (h *CardHandler) TopMentions(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = n
	}

	ranks, err := h.dispatcher.TopMentioned(r.Context(), limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]interface{}{
		"cards": ranks,
	})
}

// Stats handles GET /stats requests.
func (h *CardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dispatcher.Stats(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// Requeue handles POST /cards/{id}/requeue requests: operator-triggered
// re-analysis of a completed card.
func (h *CardHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, ok := cardIDParam(w, r, log)
	if !ok {
		return
	}

	if err := h.dispatcher.Requeue(r.Context(), id); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("card requeued for re-analysis", slog.String("card_id", id.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "requeued"})
}

// ResetFailed handles POST /cards/{id}/reset requests: operator reset of
// a terminally failed job.
func (h *CardHandler) ResetFailed(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, ok := cardIDParam(w, r, log)
	if !ok {
		return
	}

	if err := h.dispatcher.ResetFailed(r.Context(), id); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("failed job reset", slog.String("card_id", id.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "reset"})
}
