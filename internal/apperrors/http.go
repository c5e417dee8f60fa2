package apperrors

import (
	"errors"
	"net/http"
)

// mapping is matched in order; the first sentinel found in the chain wins.
// NotFound precedes InvalidReference so an unknown job id is a 404 while a
// job without a container is a 409.
var mapping = []struct {
	sentinel error
	status   int
	code     string
}{
	{ErrValidation, http.StatusBadRequest, "validation"},
	{ErrNotFound, http.StatusNotFound, "not_found"},
	{ErrInvalidReference, http.StatusConflict, "invalid_reference"},
	{ErrConflict, http.StatusConflict, "conflict"},
	{ErrCreationRejected, http.StatusUnprocessableEntity, "creation_rejected"},
	{ErrRuntimeUnavailable, http.StatusServiceUnavailable, "runtime_unavailable"},
	{ErrPersistence, http.StatusInternalServerError, "persistence"},
}

// HTTPStatus maps an error to the HTTP status code reported to API clients.
// Unclassified errors are 500.
func HTTPStatus(err error) int {
	for _, m := range mapping {
		if errors.Is(err, m.sentinel) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// Code returns a stable machine-readable name for the error's kind, "internal"
// when it has none.
func Code(err error) string {
	for _, m := range mapping {
		if errors.Is(err, m.sentinel) {
			return m.code
		}
	}
	return "internal"
}
