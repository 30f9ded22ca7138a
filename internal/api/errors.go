package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/grimoire-api/internal/dispatch"
	"github.com/phrazzld/grimoire-api/internal/service/auth"
	"github.com/phrazzld/grimoire-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidSecret):
		return http.StatusUnauthorized

	// Lost-the-race claim protocol outcomes. A superseded worker whose
	// job the new holder already completed gets the same benign conflict
	// as any other lost claim.
	case errors.Is(err, store.ErrNotJobOwner),
		errors.Is(err, store.ErrJobAlreadyDone):
		return http.StatusConflict

	// Not found errors
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrJobAlreadyExists):
		return http.StatusConflict

	// Rejected drafts
	case errors.Is(err, dispatch.ErrDraftRejected):
		return http.StatusUnprocessableEntity

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Empty backlog is handled separately with StatusNoContent
	case errors.Is(err, store.ErrNoJobAvailable):
		return http.StatusNoContent

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, auth.ErrInvalidSecret):
		return "Invalid registration secret"

	case errors.Is(err, store.ErrNotJobOwner):
		return "Job claim is held by another worker"

	case errors.Is(err, store.ErrJobAlreadyDone):
		return "Analysis job is already done"

	case errors.Is(err, store.ErrCardNotFound):
		return "Card not found"

	case errors.Is(err, store.ErrGuideNotFound):
		return "Guide not found"

	case errors.Is(err, store.ErrJobNotFound):
		return "Analysis job not found"

	case errors.Is(err, store.ErrNotFound):
		return "Not found"

	case errors.Is(err, store.ErrJobAlreadyExists):
		return "Analysis job already exists"

	case errors.Is(err, dispatch.ErrDraftRejected):
		return "Guide draft rejected"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example format: "Key: 'ClaimRequest.LeaseSeconds' Error:Field
	// validation for 'LeaseSeconds' failed on the 'gte' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "gte", "lte", "gt", "lt":
		return "out of range"
	case "oneof":
		return "invalid value"
	case "uuid":
		return "invalid identifier"
	default:
		return "validation failed"
	}
}
