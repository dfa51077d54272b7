// Package timebox runs an operation against a deadline and always returns a
// tagged outcome. An operation that overruns its budget is reported as
// ErrTimeout immediately; the operation itself keeps a cancelled context so
// it can stop on its own, but the caller never waits for it.
package timebox

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the operation did not finish within its budget.
var ErrTimeout = errors.New("timebox: operation timed out")

type outcome[T any] struct {
	value T
	err   error
}

// Do runs fn with a context bound to the given budget. It returns fn's
// result, or ErrTimeout if the budget elapses first, or the parent context's
// error if that is cancelled. fn must honor context cancellation to avoid
// doing work past the deadline; either way its result can no longer reach
// the caller once Do has returned.
func Do[T any](ctx context.Context, budget time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	// Buffered so the goroutine can always complete its send and exit.
	ch := make(chan outcome[T], 1)
	go func() {
		v, err := fn(ctx)
		ch <- outcome[T]{value: v, err: err}
	}()

	select {
	case out := <-ch:
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}
