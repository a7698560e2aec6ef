package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by providers and fetchers.
var (
	// ErrSourceUnavailable indicates a network failure, timeout, or non-2xx response.
	ErrSourceUnavailable = errors.New("metadata source unavailable")

	// ErrParseFailure indicates a response that could not be interpreted.
	ErrParseFailure = errors.New("could not parse metadata response")

	// ErrConfiguration indicates an invalid provider list.
	ErrConfiguration = errors.New("invalid provider configuration")
)

// StatusError is returned when a source answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

// Unwrap lets errors.Is match ErrSourceUnavailable.
func (e *StatusError) Unwrap() error {
	return ErrSourceUnavailable
}

// IsUnavailable returns true if the error came from fetching.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}

// IsParseFailure returns true if the error came from parsing.
func IsParseFailure(err error) bool {
	return errors.Is(err, ErrParseFailure)
}

// IsNotFound returns true if the source answered 404.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// IsRateLimited returns true if the source answered 429.
func IsRateLimited(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests
}

func parseErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParseFailure, fmt.Sprintf(format, args...))
}
