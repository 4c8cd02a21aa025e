package gateway

import (
	"math"
	"time"
)

// Policy controls how a single submission is executed.
type Policy struct {
	// MaxRetries is the number of extra attempts after the first rate-limited one.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// UseQueue routes the work through the serialized queue. When false the work runs
	// immediately in the caller's goroutine, without pacing or deduplication.
	UseQueue bool
	// AttemptTimeout bounds the context handed to each attempt. Zero disables it.
	AttemptTimeout time.Duration
}

const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 2 * time.Second
	DefaultMaxDelay   = 30 * time.Second
	DefaultMultiplier = 2.0
)

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Multiplier: DefaultMultiplier,
		UseQueue:   true,
	}
}

type Option func(*Policy)

func WithMaxRetries(n int) Option {
	return func(p *Policy) { p.MaxRetries = n }
}

func WithBackoff(base, max time.Duration, multiplier float64) Option {
	return func(p *Policy) {
		p.BaseDelay = base
		p.MaxDelay = max
		p.Multiplier = multiplier
	}
}

func WithoutQueue() Option {
	return func(p *Policy) { p.UseQueue = false }
}

func WithAttemptTimeout(d time.Duration) Option {
	return func(p *Policy) { p.AttemptTimeout = d }
}

// FailFast is the preset for latency-sensitive callers such as the periodic alert checker.
func FailFast() Option {
	return func(p *Policy) {
		p.MaxRetries = 1
		p.UseQueue = false
	}
}

func (p Policy) Validate() error {
	switch {
	case p.MaxRetries < 0:
		return &ConfigurationError{Field: "MaxRetries", Reason: "must be >= 0"}
	case p.BaseDelay < 0:
		return &ConfigurationError{Field: "BaseDelay", Reason: "must be >= 0"}
	case p.MaxDelay < 0:
		return &ConfigurationError{Field: "MaxDelay", Reason: "must be >= 0"}
	case p.Multiplier < 1 || math.IsNaN(p.Multiplier) || math.IsInf(p.Multiplier, 0):
		return &ConfigurationError{Field: "Multiplier", Reason: "must be a finite number >= 1"}
	case p.AttemptTimeout < 0:
		return &ConfigurationError{Field: "AttemptTimeout", Reason: "must be >= 0"}
	}
	return nil
}

// Backoff returns the delay before retry number attempt+1, where attempt is zero based:
// min(BaseDelay * Multiplier^attempt, MaxDelay). A zero MaxDelay leaves the delay uncapped.
func Backoff(p Policy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
