package scrape

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotFound is returned for status queries on unknown job ids. It is a
// caller error, not part of the backend failure taxonomy, and is never
// recorded on a job.
var ErrNotFound = errors.New("job not found")

// BackendError is an error reported by the backend collaborator. A rate
// limited error is transient and retryable; everything else is terminal.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend error: %s", e.Message)
}

// RateLimited reports whether the backend signaled throttling, either via
// the standard status code or a marker in the message.
func (e *BackendError) RateLimited() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "rate limit")
}

// IsRateLimited classifies an error from a backend call as transient
// throttling. Any error the backend did not mark as rate limited is
// terminal.
func IsRateLimited(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.RateLimited()
	}
	return false
}
