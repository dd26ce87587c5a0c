package bangumi

import (
	"errors"
	"fmt"
	"net/http"
)

// CredentialError indicates the access token was rejected by the catalog.
// It is never retried and must be surfaced for operator action.
type CredentialError struct {
	StatusCode int
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("bangumi credentials invalid or expired (status %d)", e.StatusCode)
}

// IsCredentialError reports whether err wraps a CredentialError
func IsCredentialError(err error) bool {
	var ce *CredentialError
	return errors.As(err, &ce)
}

// StatusError is a non-2xx response from the catalog API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bangumi API returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsNotFound reports whether err is a 404 response
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// isTransportError reports whether err is a connection-level failure rather
// than an HTTP status or credential error
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	var ce *CredentialError
	return !errors.As(err, &se) && !errors.As(err, &ce)
}
