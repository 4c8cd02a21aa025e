package gateway

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crypto-price-bot/internal/stats"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestGateway(t *testing.T, minInterval time.Duration) (*Gateway, *Metrics, *stats.MemoryRecorder) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	rec := stats.NewMemoryRecorder(100)
	g := New(Config{
		MinInterval: minInterval,
		Metrics:     m,
		Recorder:    rec,
	})
	t.Cleanup(g.Close)
	return g, m, rec
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func tooManyRequests() error {
	return NewStatusError(http.StatusTooManyRequests, "https://api.example/price", []byte(`{"error":"slow down"}`))
}

// fast backoff so retry tests stay quick
func fastBackoff() Option {
	return WithBackoff(10*time.Millisecond, time.Second, 2)
}

func TestSubmit_SerializesInSubmissionOrder(t *testing.T) {
	g, _, _ := newTestGateway(t, 0)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	var active int32
	var overlapped atomic.Bool

	blockerDone := make(chan struct{})
	go func() {
		defer close(blockerDone)
		_, _ = g.Submit(ctx, "", func(ctx context.Context) (any, error) {
			atomic.AddInt32(&active, 1)
			close(started)
			<-release
			atomic.AddInt32(&active, -1)
			return nil, nil
		})
	}()
	<-started

	const n = 8
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Submit(ctx, "", func(ctx context.Context) (any, error) {
				if atomic.AddInt32(&active, 1) > 1 {
					overlapped.Store(true)
				}
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return i, nil
			})
			if err != nil {
				t.Errorf("task %d: unexpected error %v", i, err)
			}
		}()
		waitFor(t, "task to be queued", func() bool { return g.Pending() == i+1 })
	}

	close(release)
	wg.Wait()
	<-blockerDone

	if overlapped.Load() {
		t.Fatalf("expected work invocations never to overlap")
	}
	if len(order) != n {
		t.Fatalf("expected %d invocations, got %d", n, len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestSubmit_PacesDispatches(t *testing.T) {
	const interval = 100 * time.Millisecond
	g, _, _ := newTestGateway(t, interval)
	ctx := context.Background()

	var mu sync.Mutex
	var starts []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Submit(ctx, "", func(ctx context.Context) (any, error) {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				return nil, nil
			})
		}()
	}
	wg.Wait()

	if len(starts) != 3 {
		t.Fatalf("expected 3 dispatches, got %d", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		if gap < interval-5*time.Millisecond {
			t.Fatalf("dispatch %d started %v after the previous one, want >= %v", i, gap, interval)
		}
	}
}

func TestSubmit_RetriesRateLimitWithBackoff(t *testing.T) {
	g, m, _ := newTestGateway(t, 0)

	var calls []time.Time
	v, err := g.Submit(context.Background(), "", func(ctx context.Context) (any, error) {
		calls = append(calls, time.Now())
		if len(calls) <= 3 {
			return nil, tooManyRequests()
		}
		return "ok", nil
	}, WithMaxRetries(5), fastBackoff())

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if v != "ok" {
		t.Fatalf("expected result ok, got %v", v)
	}
	if len(calls) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(calls))
	}

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	for i, w := range want {
		if gap := calls[i+1].Sub(calls[i]); gap < w {
			t.Fatalf("retry %d came %v after the previous attempt, want >= %v", i+1, gap, w)
		}
	}
	if got := testutil.ToFloat64(m.Retries); got != 3 {
		t.Fatalf("expected 3 retries recorded, got %v", got)
	}
}

func TestSubmit_FailsAfterRetryBudget(t *testing.T) {
	g, m, rec := newTestGateway(t, 0)

	calls := 0
	_, err := g.Submit(context.Background(), "", func(ctx context.Context) (any, error) {
		calls++
		return nil, tooManyRequests()
	}, WithMaxRetries(2), fastBackoff())

	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	var rle *RateLimitExceededError
	if !errors.As(err, &rle) {
		t.Fatalf("expected *RateLimitExceededError, got %T", err)
	}
	if rle.Attempts != 3 {
		t.Fatalf("expected Attempts=3, got %d", rle.Attempts)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected last upstream 429 to be wrapped, got %v", err)
	}
	if got := testutil.ToFloat64(m.Outcomes.WithLabelValues(stats.OutcomeRateLimited)); got != 1 {
		t.Fatalf("expected one rate_limited outcome, got %v", got)
	}
	if got := rec.Total(); got.RateLimited != 1 || got.Attempts != 3 {
		t.Fatalf("unexpected recorded counters: %+v", got)
	}
}

func TestSubmit_NonRateLimitErrorFailsFast(t *testing.T) {
	g, m, _ := newTestGateway(t, 0)
	upstream := NewStatusError(http.StatusInternalServerError, "https://api.example/price", nil)

	calls := 0
	start := time.Now()
	_, err := g.Submit(context.Background(), "", func(ctx context.Context) (any, error) {
		calls++
		return nil, upstream
	}, WithMaxRetries(5), WithBackoff(time.Second, time.Second, 2))

	if err != upstream {
		t.Fatalf("expected the upstream error untouched, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("expected no backoff, took %v", elapsed)
	}
	if got := testutil.ToFloat64(m.Retries); got != 0 {
		t.Fatalf("expected no retries, got %v", got)
	}
}

func TestSubmit_DeduplicatesSharedKey(t *testing.T) {
	g, m, _ := newTestGateway(t, 0)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	var calls int32

	work := func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		return 1850.25, nil
	}

	type result struct {
		v   any
		err error
	}
	results := make(chan result, 2)
	go func() {
		v, err := g.Submit(ctx, "eth-price", work)
		results <- result{v, err}
	}()
	<-started
	go func() {
		v, err := g.Submit(ctx, "eth-price", work)
		results <- result{v, err}
	}()
	waitFor(t, "second submission to attach", func() bool {
		return testutil.ToFloat64(m.Deduplicated) == 1
	})
	if got := g.InFlight(); got != 1 {
		t.Fatalf("expected one in-flight key, got %d", got)
	}

	close(release)
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil || r.v != 1850.25 {
			t.Fatalf("expected shared result 1850.25, got %v, %v", r.v, r.err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected work invoked once, got %d", got)
	}
	if got := g.InFlight(); got != 0 {
		t.Fatalf("expected key released after settle, got %d in flight", got)
	}
}

func TestSubmit_DeduplicatedCallersShareError(t *testing.T) {
	g, _, _ := newTestGateway(t, 0)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	upstream := errors.New("dexscreener: malformed response")
	var calls int32

	work := func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		return nil, upstream
	}

	errs := make(chan error, 2)
	go func() {
		_, err := g.Submit(ctx, "dex:0xabc", work)
		errs <- err
	}()
	<-started
	go func() {
		_, err := g.Submit(ctx, "dex:0xabc", work)
		errs <- err
	}()
	// the second submission attaches while the key is still registered
	waitFor(t, "second submission to attach", func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		c, ok := g.inFlight["dex:0xabc"]
		return ok && c.waiters == 2
	})

	close(release)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != upstream {
			t.Fatalf("expected shared upstream error, got %v", err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected work invoked once, got %d", got)
	}
}

func TestSubmit_BypassRunsImmediately(t *testing.T) {
	g, m, _ := newTestGateway(t, time.Hour)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		_, _ = g.Submit(ctx, "slow", func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	// queued behind the slow task and, with a one hour floor, never dispatched during the test
	queued := make(chan struct{})
	go func() {
		defer close(queued)
		_, _ = g.Submit(ctx, "", func(ctx context.Context) (any, error) { return nil, nil })
	}()
	waitFor(t, "task to be queued", func() bool { return g.Pending() == 1 })

	var calls int32
	bypass := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "direct", nil
	}

	done := make(chan any, 1)
	go func() {
		v, _ := g.Submit(ctx, "slow", bypass, WithoutQueue())
		done <- v
	}()

	select {
	case v := <-done:
		if v != "direct" {
			t.Fatalf("expected bypass result, got %v", v)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("bypass submission waited on the queue")
	}

	if _, err := g.Submit(ctx, "slow", bypass, FailFast()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected bypass submissions not to be deduplicated, got %d calls", got)
	}
	if got := testutil.ToFloat64(m.Dispatches.WithLabelValues(modeDirect)); got != 2 {
		t.Fatalf("expected 2 direct dispatches, got %v", got)
	}

	close(release)
	<-slowDone
}

func TestSubmit_RejectsInvalidPolicy(t *testing.T) {
	g, _, _ := newTestGateway(t, 0)

	calls := 0
	work := func(ctx context.Context) (any, error) {
		calls++
		return nil, nil
	}

	cases := map[string]Option{
		"negative retries": WithMaxRetries(-1),
		"negative delay":   WithBackoff(-time.Second, time.Second, 2),
		"multiplier < 1":   WithBackoff(time.Second, time.Second, 0.5),
		"negative timeout": WithAttemptTimeout(-time.Second),
	}
	for name, opt := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := g.Submit(context.Background(), "", work, opt)
			if !errors.Is(err, ErrInvalidPolicy) {
				t.Fatalf("expected ErrInvalidPolicy, got %v", err)
			}
		})
	}
	if calls != 0 {
		t.Fatalf("expected invalid submissions not to run, got %d calls", calls)
	}
	if g.Pending() != 0 {
		t.Fatalf("expected nothing queued")
	}

	if _, err := g.Submit(context.Background(), "", nil); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected nil work to be rejected, got %v", err)
	}
}

func TestSubmit_CallerCancelDoesNotCancelSharedRequest(t *testing.T) {
	g, _, _ := newTestGateway(t, 0)

	release := make(chan struct{})
	started := make(chan struct{})
	var sawCancel atomic.Bool

	work := func(ctx context.Context) (any, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			sawCancel.Store(true)
		}
		return "price", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := g.Submit(ctx, "btc", work)
		first <- err
	}()
	<-started

	second := make(chan any, 1)
	go func() {
		v, _ := g.Submit(context.Background(), "btc", work)
		second <- v
	}()
	waitFor(t, "second submission to attach", func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		c, ok := g.inFlight["btc"]
		return ok && c.waiters == 2
	})

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled caller to get context.Canceled, got %v", err)
	}

	close(release)
	if v := <-second; v != "price" {
		t.Fatalf("expected remaining caller to get the result, got %v", v)
	}
	if sawCancel.Load() {
		t.Fatalf("shared request must not observe a waiter's cancellation")
	}
}

func TestSubmit_AttemptTimeoutBoundsWork(t *testing.T) {
	g, _, _ := newTestGateway(t, 0)

	_, err := g.Submit(context.Background(), "", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, WithAttemptTimeout(20*time.Millisecond))

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// the queue keeps moving after a timed out request
	v, err := g.Submit(context.Background(), "", func(ctx context.Context) (any, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Fatalf("expected queue to continue, got %v, %v", v, err)
	}
}

func TestSubmit_RecoversPanickingWork(t *testing.T) {
	g, _, _ := newTestGateway(t, 0)

	_, err := g.Submit(context.Background(), "", func(ctx context.Context) (any, error) {
		panic("boom")
	})
	if err == nil {
		t.Fatalf("expected an error from panicking work")
	}

	v, err := g.Submit(context.Background(), "", func(ctx context.Context) (any, error) { return "next", nil })
	if err != nil || v != "next" {
		t.Fatalf("expected queue to survive a panic, got %v, %v", v, err)
	}
}

func TestSubmit_CustomRetryPredicate(t *testing.T) {
	unavailable := errors.New("service unavailable")
	g := New(Config{IsRetryable: func(err error) bool { return errors.Is(err, unavailable) }})
	defer g.Close()

	calls := 0
	_, err := g.Submit(context.Background(), "", func(ctx context.Context) (any, error) {
		calls++
		return nil, unavailable
	}, WithMaxRetries(1), fastBackoff())

	if calls != 2 || !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected 2 attempts ending in ErrRateLimitExceeded, got %d, %v", calls, err)
	}
}

func TestClose_FailsQueuedWork(t *testing.T) {
	g := New(Config{})

	started := make(chan struct{})
	running := make(chan error, 1)
	go func() {
		_, err := g.Submit(context.Background(), "", func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		running <- err
	}()
	<-started

	queued := make(chan error, 1)
	go func() {
		_, err := g.Submit(context.Background(), "", func(ctx context.Context) (any, error) { return nil, nil })
		queued <- err
	}()
	waitFor(t, "task to be queued", func() bool { return g.Pending() == 1 })

	g.Close()

	if err := <-queued; !errors.Is(err, ErrClosed) {
		t.Fatalf("expected queued work to fail with ErrClosed, got %v", err)
	}
	if err := <-running; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected running work to see cancellation, got %v", err)
	}
	if _, err := g.Submit(context.Background(), "", func(ctx context.Context) (any, error) { return nil, nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func TestDo_TypedResult(t *testing.T) {
	g, _, _ := newTestGateway(t, 0)
	ctx := context.Background()

	price, err := Do(ctx, g, "btc", func(ctx context.Context) (float64, error) { return 67000.5, nil })
	if err != nil || price != 67000.5 {
		t.Fatalf("expected 67000.5, got %v, %v", price, err)
	}

	type quote struct{ USD float64 }
	q, err := Do(ctx, g, "", func(ctx context.Context) (*quote, error) { return nil, nil })
	if err != nil || q != nil {
		t.Fatalf("expected nil result without error, got %v, %v", q, err)
	}
}

func TestDo_SharedResultTypeMismatch(t *testing.T) {
	g, _, _ := newTestGateway(t, 0)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		_, err := Do(ctx, g, "k", func(ctx context.Context) (string, error) {
			close(started)
			<-release
			return "text", nil
		})
		first <- err
	}()
	<-started

	second := make(chan error, 1)
	go func() {
		_, err := Do(ctx, g, "k", func(ctx context.Context) (int, error) { return 1, nil })
		second <- err
	}()
	waitFor(t, "second submission to attach", func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		c, ok := g.inFlight["k"]
		return ok && c.waiters == 2
	})
	close(release)

	if err := <-first; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := <-second; err == nil {
		t.Fatalf("expected type mismatch error")
	}
}
