package resilient

import "errors"

// ---------------------------------------------------------------------------
// Error classification wrappers
// ---------------------------------------------------------------------------.

type (
	// permanentError marks a wrapped error as permanent (non-retriable).
	permanentError struct {
		err error
	}

	// resilienceError is the concrete type backing all sentinel errors.
	resilienceError string
)

// Sentinel resilience errors.
var (
	// ErrTimeout is returned when a call exceeds its hard timeout. It is
	// joined with the failure observed when the deadline fired.
	ErrTimeout error = resilienceError("timeout")
	// ErrRetriesExhausted matches (via errors.Is) a failure surfaced after
	// the whole retry budget was consumed. The error itself still reads as
	// the last real failure.
	ErrRetriesExhausted error = resilienceError("retries exhausted")
)

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func (e resilienceError) Error() string { return string(e) }

// Permanent wraps err to mark it as a permanent (non-retriable) error.
// No retry layer retries a permanent error, whatever its predicate says.
// Returns nil if err is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// IsTransient reports whether err may be retried: any non-nil error not
// marked [Permanent]. It is the default RetryIf of [DoRetry].
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	// Explicitly permanent errors are not transient.
	var pe *permanentError

	return !errors.As(err, &pe)
}

// IsPermanent reports whether err was explicitly marked as permanent.
// Returns false for nil and for unclassified errors.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var pe *permanentError

	return errors.As(err, &pe)
}

// ---------------------------------------------------------------------------
// Attempt trail
// ---------------------------------------------------------------------------

// AttemptsError attaches the number of attempts a call made to the failure
// it finally surfaced. Its message is the message of the underlying error:
// callers see the real cause, not a "gave up after N attempts" summary.
type AttemptsError struct {
	Err       error
	Attempts  int
	Exhausted bool
}

func (e *AttemptsError) Error() string { return e.Err.Error() }
func (e *AttemptsError) Unwrap() error { return e.Err }

// Is reports ErrRetriesExhausted for failures that consumed the budget.
func (e *AttemptsError) Is(target error) bool {
	return e.Exhausted && target == ErrRetriesExhausted
}

// WithAttempts wraps err with an attempt count. Returns nil if err is nil.
func WithAttempts(err error, attempts int, exhausted bool) error {
	if err == nil {
		return nil
	}

	return &AttemptsError{Err: err, Attempts: attempts, Exhausted: exhausted}
}

// Attempts returns the attempt count recorded on the outermost
// [AttemptsError] in err's chain.
func Attempts(err error) (int, bool) {
	var ae *AttemptsError
	if errors.As(err, &ae) {
		return ae.Attempts, true
	}

	return 0, false
}
