// Package gateway runs outbound API calls one at a time through a paced FIFO queue.
//
// Every queued request starts at least MinInterval after the previous one, a request
// that comes back rate limited is retried with capped exponential backoff while it keeps
// the queue slot, and submissions that share a key while one is outstanding share its
// outcome instead of calling the upstream again.
//
// Work handed to the gateway must honor its context. A request that never returns stalls
// the queue behind it, so every attempt gets a context bounded by the attempt timeout.
package gateway

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"crypto-price-bot/internal/stats"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultMinInterval    = 1200 * time.Millisecond
	DefaultAttemptTimeout = 20 * time.Second

	modeQueued = "queued"
	modeDirect = "direct"
)

// Work performs exactly one outbound call.
type Work func(ctx context.Context) (any, error)

type Config struct {
	// MinInterval is the minimum spacing between the starts of two queued requests.
	MinInterval time.Duration
	// IsRetryable decides which errors are retried. Defaults to IsRateLimited.
	IsRetryable func(error) bool
	// AttemptTimeout is the default Policy.AttemptTimeout.
	AttemptTimeout time.Duration
	Metrics        *Metrics
	Recorder       stats.Recorder
	Logger         *log.Entry
}

// Gateway is safe for concurrent use. Create one per process with New and share it.
type Gateway struct {
	cfg     Config
	limiter *rate.Limiter
	log     *log.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	pending  []*task
	draining bool
	inFlight map[string]*call
	closed   bool
}

// call is the outcome shared by every submission attached to one key.
type call struct {
	done    chan struct{}
	val     any
	err     error
	waiters int
}

type task struct {
	key      string
	work     Work
	policy   Policy
	call     *call
	queuedAt time.Time
}

func New(cfg Config) *Gateway {
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = IsRateLimited
	}
	if cfg.AttemptTimeout < 0 {
		cfg.AttemptTimeout = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = log.WithField("component", "gateway")
	}

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		log:      cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[string]*call),
	}
}

// Submit runs work according to the policy built from opts and returns its result.
//
// A non-empty key deduplicates: while a queued submission with the same key is
// outstanding, later submissions wait for and return its outcome. An empty key gets a
// fresh unique one. If ctx ends first Submit returns ctx.Err(), but the shared request
// keeps running for the other waiters.
func (g *Gateway) Submit(ctx context.Context, key string, work Work, opts ...Option) (any, error) {
	if work == nil {
		return nil, &ConfigurationError{Field: "work", Reason: "must not be nil"}
	}
	p := g.policy(opts...)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if key == "" {
		key = uuid.NewString()
	}

	if !p.UseQueue {
		return g.direct(ctx, key, work, p)
	}

	c, err := g.enqueue(key, work, p)
	if err != nil {
		return nil, err
	}

	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do is Submit with a typed result.
func Do[T any](ctx context.Context, g *Gateway, key string, work func(context.Context) (T, error), opts ...Option) (T, error) {
	var zero T
	v, err := g.Submit(ctx, key, func(ctx context.Context) (any, error) {
		return work(ctx)
	}, opts...)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, errors.Errorf("gateway: shared result for key %q is %T, want %T", key, v, zero)
	}
	return t, nil
}

// Pending is the number of requests waiting for the drain loop.
func (g *Gateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// InFlight is the number of distinct keys queued or running.
func (g *Gateway) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}

// Close rejects new submissions, fails queued ones with ErrClosed and cancels the
// context of the running one.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	dropped := g.pending
	g.pending = nil
	for _, t := range dropped {
		delete(g.inFlight, t.key)
	}
	g.cfg.Metrics.queueDepth(0)
	g.mu.Unlock()

	g.cancel()
	for _, t := range dropped {
		t.call.err = ErrClosed
		close(t.call.done)
	}
	if len(dropped) > 0 {
		g.log.Infof("gateway closed, dropped %d queued requests", len(dropped))
	}
}

func (g *Gateway) policy(opts ...Option) Policy {
	p := DefaultPolicy()
	p.AttemptTimeout = g.cfg.AttemptTimeout
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func (g *Gateway) enqueue(key string, work Work, p Policy) (*call, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}

	if c, ok := g.inFlight[key]; ok {
		c.waiters++
		g.cfg.Metrics.deduplicated()
		g.log.WithFields(log.Fields{"key": key, "waiters": c.waiters}).Debug("attached to in-flight request")
		return c, nil
	}

	c := &call{done: make(chan struct{}), waiters: 1}
	g.inFlight[key] = c
	g.pending = append(g.pending, &task{
		key:      key,
		work:     work,
		policy:   p,
		call:     c,
		queuedAt: time.Now(),
	})
	g.cfg.Metrics.queueDepth(len(g.pending))

	if !g.draining {
		g.draining = true
		go g.drain()
	}
	return c, nil
}

// drain is the only goroutine that dispatches queued work. It exits once the queue is
// empty; the draining flag is cleared under the same lock enqueue checks it with.
func (g *Gateway) drain() {
	for {
		g.mu.Lock()
		if len(g.pending) == 0 {
			g.draining = false
			g.mu.Unlock()
			return
		}
		t := g.pending[0]
		g.pending[0] = nil
		g.pending = g.pending[1:]
		g.cfg.Metrics.queueDepth(len(g.pending))
		g.mu.Unlock()

		g.run(t)
	}
}

func (g *Gateway) run(t *task) {
	entry := g.log.WithField("key", t.key)

	var (
		val      any
		attempts int
		err      error
	)
	if err = g.pace(entry, t); err == nil {
		g.cfg.Metrics.dispatched(modeQueued)
		val, attempts, err = g.execute(g.ctx, entry, t.work, t.policy)
	}

	g.mu.Lock()
	delete(g.inFlight, t.key)
	g.mu.Unlock()

	t.call.val, t.call.err = val, err
	close(t.call.done)

	g.settle(t.key, modeQueued, attempts, err)
}

func (g *Gateway) pace(entry *log.Entry, t *task) error {
	start := time.Now()
	if err := g.limiter.Wait(g.ctx); err != nil {
		if g.ctx.Err() != nil {
			return ErrClosed
		}
		return errors.Wrap(err, "gateway: pacing")
	}
	if waited := time.Since(start); waited > time.Millisecond {
		entry.WithFields(log.Fields{
			"wait":   waited,
			"queued": time.Since(t.queuedAt),
		}).Debug("paced dispatch")
	}
	return nil
}

func (g *Gateway) direct(ctx context.Context, key string, work Work, p Policy) (any, error) {
	entry := g.log.WithFields(log.Fields{"key": key, "mode": modeDirect})
	g.cfg.Metrics.dispatched(modeDirect)
	val, attempts, err := g.execute(ctx, entry, work, p)
	g.settle(key, modeDirect, attempts, err)
	return val, err
}

// execute runs the attempts of one request. Only errors accepted by IsRetryable are
// retried; any other error is returned as is on first occurrence.
func (g *Gateway) execute(ctx context.Context, entry *log.Entry, work Work, p Policy) (any, int, error) {
	for attempt := 0; ; attempt++ {
		val, err := g.attempt(ctx, work, p)
		if err == nil {
			return val, attempt + 1, nil
		}
		if !g.cfg.IsRetryable(err) {
			entry.WithField("attempt", attempt+1).Debugf("request failed: %v", err)
			return nil, attempt + 1, err
		}
		if attempt >= p.MaxRetries {
			entry.WithField("attempts", attempt+1).Warnf("rate limited, giving up: %v", err)
			return nil, attempt + 1, &RateLimitExceededError{Attempts: attempt + 1, Err: err}
		}

		delay := Backoff(p, attempt)
		g.cfg.Metrics.retried(delay)
		entry.WithFields(log.Fields{"attempt": attempt + 1, "delay": delay}).Info("rate limited, backing off")
		if err := sleep(ctx, delay); err != nil {
			return nil, attempt + 1, err
		}
	}
}

func (g *Gateway) attempt(ctx context.Context, work Work, p Policy) (val any, err error) {
	if p.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			g.log.Errorf("recovered panic in gateway work: %v\n%s", r, debug.Stack())
			val, err = nil, errors.Errorf("gateway: work panicked: %v", r)
		}
	}()
	return work(ctx)
}

func (g *Gateway) settle(key, mode string, attempts int, err error) {
	outcome := stats.OutcomeOK
	switch {
	case errors.Is(err, ErrRateLimitExceeded):
		outcome = stats.OutcomeRateLimited
	case err != nil:
		outcome = stats.OutcomeError
	}
	g.cfg.Metrics.settled(outcome)

	if g.cfg.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	rerr := g.cfg.Recorder.Record(ctx, stats.Event{
		Key:      key,
		Mode:     mode,
		Outcome:  outcome,
		Attempts: attempts,
		At:       time.Now(),
	})
	if rerr != nil {
		g.log.Debugf("failed to record gateway stats: %v", rerr)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
