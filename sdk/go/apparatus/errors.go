// Package apparatus provides a Go client for the Apparatus
// experiment-tracking API.
package apparatus

import (
	"errors"
	"fmt"
	"strings"
)

// Error represents an error from the Apparatus API with the HTTP status
// code and the server's error message.
type Error struct {
	StatusCode int
	Message    string

	// MissingFields is populated for metric-ingestion validation errors.
	MissingFields []string
}

func (e *Error) Error() string {
	if len(e.MissingFields) > 0 {
		return fmt.Sprintf("apparatus: %s (%d): missing %s", e.Message, e.StatusCode, strings.Join(e.MissingFields, ", "))
	}
	return fmt.Sprintf("apparatus: %s (%d)", e.Message, e.StatusCode)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 404
	}
	return false
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 401
	}
	return false
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}
