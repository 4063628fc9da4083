package utils

import (
	"context"
	"errors"
	"net/http"

	"github.com/aristath/valuator/internal/domain"
)

// StatusForError maps a service error onto an HTTP status
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case domain.IsInvalidInput(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case domain.IsBusiness(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
