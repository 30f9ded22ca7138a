// Package api provides HTTP handlers for the API.
package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/grimoire-api/internal/api/shared"
	"github.com/phrazzld/grimoire-api/internal/platform/logger"
	"github.com/phrazzld/grimoire-api/internal/redact"
	"github.com/phrazzld/grimoire-api/internal/service/auth"
)

// AuthHandler exchanges shared registration secrets for bearer tokens.
// Workers present the worker secret and receive a worker-role token bound
// to their chosen opaque identity; operators do the same with the admin
// secret.
type AuthHandler struct {
	jwtService       auth.JWTService
	verifier         auth.SecretVerifier
	workerSecretHash string
	adminSecretHash  string
	logger           *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	jwtService auth.JWTService,
	verifier auth.SecretVerifier,
	workerSecretHash string,
	adminSecretHash string,
	logger *slog.Logger,
) *AuthHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for AuthHandler")
	}

	return &AuthHandler{
		jwtService:       jwtService,
		verifier:         verifier,
		workerSecretHash: workerSecretHash,
		adminSecretHash:  adminSecretHash,
		logger:           logger.With(slog.String("component", "auth_handler")),
	}
}

// Token handles POST /auth/token requests.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req TokenRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	role := auth.RoleWorker
	if req.Role == string(auth.RoleAdmin) {
		role = auth.RoleAdmin
	}

	secretHash := h.workerSecretHash
	if role == auth.RoleAdmin {
		secretHash = h.adminSecretHash
	}

	if secretHash == "" {
		log.Error("no secret hash configured for role", slog.String("role", string(role)))
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication not configured")
		return
	}

	if err := h.verifier.Compare(secretHash, req.Secret); err != nil {
		log.Warn("registration secret rejected",
			slog.String("worker_id", req.WorkerID),
			slog.String("role", string(role)))
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid registration secret")
		return
	}

	token, err := h.jwtService.GenerateToken(r.Context(), req.WorkerID, role)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}

	claims, err := h.jwtService.ValidateToken(r.Context(), token)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}

	log.Info("token issued",
		slog.String("subject", req.WorkerID),
		slog.String("role", string(role)))

	shared.RespondWithJSON(w, r, http.StatusOK, TokenResponse{
		Token:     token,
		Role:      string(role),
		ExpiresAt: claims.ExpiresAt,
	})
}
