package resilient

import (
	"context"
	"time"
)

// Pattern: Decorator — each retry layer wraps the next, forming a
// composable chain where order determines execution semantics.

// Middleware wraps a function call with additional behavior.
// Each middleware receives the next function in the chain and returns a
// wrapped version.
type Middleware[T any] func(next func(context.Context) (T, error)) func(context.Context) (T, error)

// Chain composes multiple middlewares into a single middleware.
// Middlewares are applied in order: the first middleware is the outermost
// wrapper. Nil middlewares are skipped.
//
// Chain(a, b, c) produces a(b(c(next))) — a is outermost, c is innermost.
// Chain() with zero middlewares returns an identity middleware that passes
// through to next.
func Chain[T any](middlewares ...Middleware[T]) Middleware[T] {
	return func(next func(context.Context) (T, error)) func(context.Context) (T, error) {
		for i := len(middlewares) - 1; i >= 0; i-- {
			if middlewares[i] == nil {
				continue
			}

			next = middlewares[i](next)
		}

		return next
	}
}

// RetryMiddleware returns a [Middleware] running next under [DoRetry].
func RetryMiddleware[T any](params RetryParams) Middleware[T] {
	return func(next func(context.Context) (T, error)) func(context.Context) (T, error) {
		return func(ctx context.Context) (T, error) {
			return DoRetry(ctx, next, params)
		}
	}
}

// TimeoutMiddleware returns a [Middleware] running next under [DoTimeout].
// A non-positive timeout yields nil, which [Chain] skips.
func TimeoutMiddleware[T any](timeout time.Duration, hooks *Hooks, clock Clock) Middleware[T] {
	if timeout <= 0 {
		return nil
	}

	return func(next func(context.Context) (T, error)) func(context.Context) (T, error) {
		return func(ctx context.Context) (T, error) {
			return DoTimeout(ctx, timeout, next, hooks, clock)
		}
	}
}
