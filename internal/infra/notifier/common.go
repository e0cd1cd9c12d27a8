package notifier

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"

	"nexus-voice/internal/domain/entity"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RateLimitError is a 429 answer from a webhook.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// ClientError is a 4xx answer other than 429. It is not retried.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

// ServerError is a 5xx answer.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

func is429Error(err error) (*RateLimitError, bool) {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return rateLimitErr, true
	}
	return nil, false
}

// isRetryableError reports whether err is a server or transport failure.
// Rate limits are handled by is429Error.
func isRetryableError(err error) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return true
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return false
	}
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return false
	}
	return true
}

// truncateText cuts text to maxLength bytes including suffix.
func truncateText(text string, maxLength int, suffix string) string {
	if len(text) <= maxLength {
		return text
	}
	truncateAt := maxLength - len(suffix)
	if truncateAt < 0 {
		truncateAt = 0
	}
	return text[:truncateAt] + suffix
}

// alertDetails renders the counters of an alert, one per line.
func alertDetails(a *entity.Alert) string {
	var b strings.Builder
	if !a.Healthy {
		fmt.Fprintf(&b, "Consecutive failures: %d\n", a.ConsecutiveFailures)
	}
	if a.MaxRecoveryAttempts > 0 {
		fmt.Fprintf(&b, "Recovery attempts: %d/%d\n", a.RecoveryAttempts, a.MaxRecoveryAttempts)
	}
	if len(a.ErrorKinds) > 0 {
		parts := make([]string, 0, len(a.ErrorKinds))
		for _, k := range slices.Sorted(maps.Keys(a.ErrorKinds)) {
			parts = append(parts, fmt.Sprintf("%s=%d", k, a.ErrorKinds[k]))
		}
		fmt.Fprintf(&b, "Errors: %s\n", strings.Join(parts, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// unwrapURLError drops the request URL from a transport error.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
