// Package stats records settled gateway requests for later inspection.
//
// Recording is best effort: the gateway logs a failed Record and moves on.
package stats

import (
	"context"
	"time"
)

const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// Event describes one settled request.
type Event struct {
	Key      string
	Mode     string // "queued" or "direct"
	Outcome  string
	Attempts int
	At       time.Time
}

type Recorder interface {
	Record(ctx context.Context, ev Event) error
}
