package resilient

import (
	"context"
	"time"
)

// RetryParams configures one run of [DoRetry].
type RetryParams struct {
	// Strategy produces the waits between attempts. Nil means no wait.
	Strategy BackoffStrategy
	// RetryIf reports whether a failure may be retried. Nil means every
	// error not marked [Permanent] is retried.
	RetryIf func(error) bool
	// Hooks receives retry notifications. May be nil.
	Hooks *Hooks
	// Clock drives backoff sleeps. Nil means [RealClock].
	Clock Clock
	// Layer tags emitted events.
	Layer Layer
	// MaxRetries is the retry budget: the call is attempted at most
	// MaxRetries+1 times. Zero (or less) disables retries.
	MaxRetries int
}

// Pattern: Retry with Backoff — masks transient failures with a backoff
// schedule; respects Permanent classification and cancellation to stop
// early.

// DoRetry executes fn, retrying failures accepted by params.RetryIf until the
// retry budget is spent.
//
// Per call the loop moves through Attempting(n) → Success, or
// RetryableFailure → sleep(schedule[n-1]) → Attempting(n+1), or
// PermanentFailure → done. Attempts are strictly sequential. Cancellation of
// ctx is checked before every attempt (including the first) and aborts a
// pending sleep.
//
// The surfaced failure is always the last real one. When more than one
// attempt was made it is wrapped in an [AttemptsError]; exhaustion of the
// budget additionally matches [ErrRetriesExhausted].
//
//nolint:ireturn // generic type parameter T, not an interface
func DoRetry[T any](
	ctx context.Context,
	fn func(context.Context) (T, error),
	params RetryParams,
) (T, error) {
	var zero T

	clock := params.Clock
	if clock == nil {
		clock = RealClock{}
	}

	retryIf := params.RetryIf
	if retryIf == nil {
		retryIf = IsTransient
	}

	var schedule []time.Duration

	if params.MaxRetries > 0 {
		if params.Strategy != nil {
			schedule = params.Strategy.Schedule(params.MaxRetries)
		} else {
			schedule = make([]time.Duration, params.MaxRetries)
		}
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err //nolint:wrapcheck // preserving context error identity
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if IsPermanent(err) || ctx.Err() != nil || !retryIf(err) {
			return zero, trail(err, attempt)
		}

		retry := attempt - 1
		if retry >= len(schedule) {
			if len(schedule) == 0 {
				return zero, err
			}

			params.Hooks.emitExhausted(ExhaustedEvent{
				Layer:    params.Layer,
				Attempts: attempt,
				Err:      err,
			})

			return zero, WithAttempts(err, attempt, true)
		}

		delay := schedule[retry]

		params.Hooks.emitRetry(RetryEvent{
			Layer:   params.Layer,
			Attempt: attempt,
			Delay:   delay,
			Err:     err,
		})

		if sleepErr := sleep(ctx, clock, delay); sleepErr != nil {
			return zero, sleepErr
		}
	}
}

// trail attaches the attempt count once a call has been retried.
func trail(err error, attempts int) error {
	if attempts <= 1 {
		return err
	}

	return WithAttempts(err, attempts, false)
}

// sleep waits for d on clock, returning early with the context error if ctx
// is done first.
func sleep(ctx context.Context, clock Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err() //nolint:wrapcheck // preserving context error identity
	}

	timer := clock.NewTimer(d)
	select {
	case <-timer.C():
		return nil
	case <-ctx.Done():
		timer.Stop()

		return ctx.Err() //nolint:wrapcheck // preserving context error identity
	}
}
