package search

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAPIKey is returned when a required API key is not provided
	ErrMissingAPIKey = errors.New("API key is required")

	// ErrUnsupportedProvider is returned when an unsupported provider tag is specified
	ErrUnsupportedProvider = errors.New("unsupported search provider")

	// ErrNoResults is returned when a search returns no results
	ErrNoResults = errors.New("no search results found")

	// ErrProviderUnavailable is returned when the guard refuses a call
	ErrProviderUnavailable = errors.New("search provider is currently unavailable")
)

// HTTPError carries the status code of a failed provider request so the
// health tracker can distinguish rate limits from other failures.
type HTTPError struct {
	Provider   string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s request failed with status: %d", e.Provider, e.StatusCode)
}

// StatusOf extracts the HTTP status from a provider error chain; 0 means the
// failure was not an HTTP status (network error, parse error, timeout).
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
