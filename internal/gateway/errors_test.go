package gateway

import (
	"net/http"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestIsRateLimited(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", NewStatusError(http.StatusTooManyRequests, "u", nil), true},
		{"wrapped 429", errors.Wrap(NewStatusError(http.StatusTooManyRequests, "u", nil), "coingecko"), true},
		{"500", NewStatusError(http.StatusInternalServerError, "u", nil), false},
		{"sentinel", errors.Wrap(ErrRateLimited, "telegram"), true},
		{"plain", errors.New("connection reset"), false},
	}
	for _, tc := range cases {
		if got := IsRateLimited(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestNewStatusError_TruncatesBody(t *testing.T) {
	body := strings.Repeat("x", 1000)
	err := NewStatusError(http.StatusBadGateway, "https://api.etherscan.io/api", []byte(body))

	if len(err.Body) != maxErrorBody+3 {
		t.Fatalf("expected truncated body, got %d bytes", len(err.Body))
	}
	if err.Status != "Bad Gateway" {
		t.Fatalf("unexpected status text %q", err.Status)
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status code in message, got %q", err.Error())
	}
}

func TestRateLimitExceededError_Unwraps(t *testing.T) {
	last := NewStatusError(http.StatusTooManyRequests, "u", nil)
	err := error(&RateLimitExceededError{Attempts: 6, Err: last})

	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected errors.Is match on ErrRateLimitExceeded")
	}
	var se *StatusError
	if !errors.As(err, &se) || se != last {
		t.Fatalf("expected to unwrap the last upstream error")
	}
	if !strings.Contains(err.Error(), "6 attempts") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
