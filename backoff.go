package resilient

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy determines the waits between the attempts of one call.
//
// Pattern: Strategy — swap backoff algorithms (decorrelated jitter,
// constant, exponential, linear, jitter) without changing retry logic.
type BackoffStrategy interface {
	// Schedule returns one wait per retry, in order. The first attempt never
	// waits, so a budget of n retries yields exactly n durations and a budget
	// of 0 yields an empty schedule. Stateful strategies derive a fresh
	// schedule on every call.
	Schedule(retries int) []time.Duration
}

// maxScheduledDelay keeps float arithmetic clear of time.Duration overflow.
const maxScheduledDelay = float64(math.MaxInt64 / 2)

// Schedule returns the decorrelated jitter schedule for base and retries.
// It is the default backoff of every retry layer.
func Schedule(base time.Duration, retries int) []time.Duration {
	return DecorrelatedJitterBackoff(base).Schedule(retries)
}

// scheduleOf builds a schedule from a stateless per-retry delay function.
func scheduleOf(retries int, delay func(retry int) time.Duration) []time.Duration {
	if retries <= 0 {
		return []time.Duration{}
	}

	out := make([]time.Duration, retries)
	for retry := range retries {
		d := delay(retry)
		if d < 0 {
			d = 0
		}

		out[retry] = d
	}

	return out
}

func clampDelay(f float64) time.Duration {
	if f > maxScheduledDelay || math.IsInf(f, 1) {
		f = maxScheduledDelay
	}

	if f < 0 || math.IsNaN(f) {
		return 0
	}

	return time.Duration(f)
}

// ---------------------------------------------------------------------------
// BackoffFunc — adapter for plain functions
// ---------------------------------------------------------------------------

// BackoffFunc adapts an ordinary per-retry function into a
// [BackoffStrategy]. The argument is the 0-indexed retry number.
type BackoffFunc func(retry int) time.Duration

// Schedule calls the underlying function once per retry.
func (f BackoffFunc) Schedule(retries int) []time.Duration {
	return scheduleOf(retries, f)
}

// ---------------------------------------------------------------------------
// DecorrelatedJitterBackoff
// ---------------------------------------------------------------------------

// decorrelatedGrowth is the multiplier applied to the previous wait to
// obtain the upper bound of the next one.
const decorrelatedGrowth = 3

type decorrelatedJitterBackoff struct {
	base  time.Duration
	cap   time.Duration
	float func() float64
}

// DecorrelatedOption configures [DecorrelatedJitterBackoff].
type DecorrelatedOption func(*decorrelatedJitterBackoff)

// WithCap bounds every individual wait. Zero means no cap.
func WithCap(d time.Duration) DecorrelatedOption {
	return func(b *decorrelatedJitterBackoff) {
		b.cap = d
	}
}

// WithRandom replaces the source of uniform floats in [0, 1).
// It must be safe for concurrent use if the strategy is shared.
func WithRandom(float func() float64) DecorrelatedOption {
	return func(b *decorrelatedJitterBackoff) {
		if float != nil {
			b.float = float
		}
	}
}

// DecorrelatedJitterBackoff returns a [BackoffStrategy] where each wait is
// drawn uniformly from [base, previous*3], starting from previous = base.
// Consecutive waits are correlated only through their upper bound, which
// spreads concurrent retriers across time instead of letting them retry
// in lockstep.
func DecorrelatedJitterBackoff(base time.Duration, opts ...DecorrelatedOption) BackoffStrategy {
	b := &decorrelatedJitterBackoff{base: base, float: rand.Float64}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

func (b *decorrelatedJitterBackoff) Schedule(retries int) []time.Duration {
	if retries <= 0 {
		return []time.Duration{}
	}

	out := make([]time.Duration, retries)
	if b.base <= 0 {
		return out
	}

	lower := float64(b.base)
	if b.cap > 0 && lower > float64(b.cap) {
		lower = float64(b.cap)
	}

	prev := float64(b.base)
	for retry := range retries {
		upper := prev * decorrelatedGrowth
		if upper > maxScheduledDelay {
			upper = maxScheduledDelay
		}

		if b.cap > 0 && upper > float64(b.cap) {
			upper = float64(b.cap)
		}

		if upper < lower {
			upper = lower
		}

		d := clampDelay(lower + b.float()*(upper-lower))
		out[retry] = d
		prev = float64(d)
	}

	return out
}

// ---------------------------------------------------------------------------
// ConstantBackoff
// ---------------------------------------------------------------------------

// ConstantBackoff returns a [BackoffStrategy] that waits d before every
// retry.
func ConstantBackoff(d time.Duration) BackoffStrategy {
	return BackoffFunc(func(int) time.Duration { return d })
}

// ---------------------------------------------------------------------------
// ExponentialBackoff
// ---------------------------------------------------------------------------

// ExponentialBackoff returns a [BackoffStrategy] whose wait doubles with each
// retry: base * 2^retry. This is the schedule the client used before
// decorrelated jitter became the default.
func ExponentialBackoff(base time.Duration) BackoffStrategy {
	return BackoffFunc(func(retry int) time.Duration {
		return clampDelay(float64(base) * math.Pow(2, float64(retry)))
	})
}

// ---------------------------------------------------------------------------
// LinearBackoff
// ---------------------------------------------------------------------------

// LinearBackoff returns a [BackoffStrategy] whose wait grows linearly:
// step * (retry + 1).
func LinearBackoff(step time.Duration) BackoffStrategy {
	return BackoffFunc(func(retry int) time.Duration {
		return clampDelay(float64(step) * float64(retry+1))
	})
}

// ---------------------------------------------------------------------------
// ExponentialJitterBackoff
// ---------------------------------------------------------------------------

// ExponentialJitterBackoff returns a [BackoffStrategy] whose wait is uniform
// in [0, base * 2^retry] ("full jitter").
func ExponentialJitterBackoff(base time.Duration) BackoffStrategy {
	return BackoffFunc(func(retry int) time.Duration {
		ceiling := int64(clampDelay(float64(base) * math.Pow(2, float64(retry))))
		if ceiling <= 0 {
			return 0
		}

		return time.Duration(rand.Int64N(ceiling + 1))
	})
}
