package kitsu

import (
	"errors"
	"fmt"
	"net/http"

	"kitsupub/internal/services"
)

// ErrNotConnected is returned when an operation needs an authenticated session.
var ErrNotConnected = fmt.Errorf("%w: not connected to tracker", services.ErrConnection)

// APIError describes a non-2xx response from the tracker.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("tracker %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("tracker %s %s returned %d", e.Method, e.Path, e.StatusCode)
}

// Unwrap classifies the response so callers can use errors.Is with the
// services markers.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return services.ErrConnection
	case http.StatusNotFound:
		return services.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return services.ErrValidation
	default:
		return services.ErrTransient
	}
}

// IsUnauthorized reports whether err carries a 401 or 403 tracker response.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}
