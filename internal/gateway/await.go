package gateway

import "context"

// Await runs fn, which cannot take a context, and stops waiting for it when ctx ends.
// fn keeps running in the background until it returns, so it needs its own timeout.
func Await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
