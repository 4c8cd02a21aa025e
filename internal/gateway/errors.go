package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrRateLimited marks an upstream error as a rate-limit signal when no HTTP status is available.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrRateLimitExceeded matches every *RateLimitExceededError via errors.Is.
	ErrRateLimitExceeded = errors.New("rate limit retries exhausted")
	// ErrInvalidPolicy matches every *ConfigurationError via errors.Is.
	ErrInvalidPolicy = errors.New("invalid gateway policy")
	// ErrClosed is returned for work submitted to, or still queued in, a closed gateway.
	ErrClosed = errors.New("gateway closed")
)

// RateLimitExceededError is returned when every attempt in the retry budget was rate limited.
type RateLimitExceededError struct {
	Attempts int
	Err      error
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RateLimitExceededError) Unwrap() error { return e.Err }

func (e *RateLimitExceededError) Is(target error) bool { return target == ErrRateLimitExceeded }

// ConfigurationError reports an invalid Policy field. Nothing is enqueued when it is returned.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("gateway: invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrInvalidPolicy }

// StatusError is a non-2xx upstream HTTP response.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
	Body       string
	RetryAfter time.Duration
}

const maxErrorBody = 256

// NewStatusError builds a StatusError, truncating the body kept for logs.
func NewStatusError(code int, url string, body []byte) *StatusError {
	b := string(body)
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody] + "..."
	}
	return &StatusError{
		StatusCode: code,
		Status:     http.StatusText(code),
		URL:        url,
		Body:       b,
	}
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream %s returned %d %s", e.URL, e.StatusCode, e.Status)
	}
	return fmt.Sprintf("upstream %s returned %d %s: %s", e.URL, e.StatusCode, e.Status, e.Body)
}

// IsRateLimited is the default retry predicate: HTTP 429 or an error wrapping ErrRateLimited.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests
}
