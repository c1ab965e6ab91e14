package resilient

import (
	"context"
	"fmt"
	"time"
)

// Pattern: Timeout — bounds a whole (possibly retried) call with a context
// deadline, distinguishing its own deadline from parent cancellation.

// DoTimeout executes fn under a deadline of timeout. The deadline covers
// everything fn does, retries and backoff sleeps included. fn must honor
// ctx; DoTimeout does not abandon it in a goroutine.
//
// When the deadline fires the returned error matches [ErrTimeout] and wraps
// the failure fn reported. Parent cancellation is returned unchanged.
//
//nolint:ireturn // generic type parameter T, not an interface
func DoTimeout[T any](
	ctx context.Context,
	timeout time.Duration,
	fn func(context.Context) (T, error),
	hooks *Hooks,
	clock Clock,
) (T, error) {
	var zero T

	// If the parent context is already done, return its error immediately.
	if ctx.Err() != nil {
		return zero, ctx.Err() //nolint:wrapcheck // preserving context error identity
	}

	if clock == nil {
		clock = RealClock{}
	}

	start := clock.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	val, err := fn(timeoutCtx)
	if err == nil {
		return val, nil
	}

	if ctx.Err() == nil && timeoutCtx.Err() != nil {
		hooks.emitTimeout(clock.Now().Sub(start))

		return zero, fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	return zero, err
}
