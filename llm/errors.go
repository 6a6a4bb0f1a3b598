package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-200 response from the endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm endpoint returned %d: %s", e.StatusCode, e.Body)
}

// TransportError is a network-level failure (connection, timeout, read).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// isRetryable reports whether the error is worth another attempt: network
// failures, rate limiting, and server-side errors. Client errors are not.
func isRetryable(err error) bool {
	var transport *TransportError
	if errors.As(err, &transport) {
		return true
	}

	var api *APIError
	if errors.As(err, &api) {
		return api.StatusCode == http.StatusTooManyRequests || api.StatusCode >= 500
	}

	return false
}
