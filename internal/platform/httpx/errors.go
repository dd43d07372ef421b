// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the domain layer. Services wrap these with %w and
// handlers map them to HTTP statuses in one place.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("resource not found")
	ErrConflict        = errors.New("conflict")
	ErrDuplicate       = errors.New("duplicate entry")
	ErrBusinessRule    = errors.New("business rule violated")
	ErrAuthenticity    = errors.New("authenticity check failed")
	ErrExternalService = errors.New("external service unavailable")
	ErrUnauthorized    = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConflict), errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrBusinessRule):
		Problem(w, http.StatusUnprocessableEntity, "Business Rule Violated", err.Error())
	case errors.Is(err, ErrAuthenticity):
		Problem(w, http.StatusUnauthorized, "Authenticity Check Failed", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, ErrExternalService):
		Problem(w, http.StatusBadGateway, "External Service Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
