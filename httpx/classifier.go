package httpx

import (
	"errors"
	"net/http"
)

// ErrorClass tells a retry layer how to treat the outcome of an attempt.
type ErrorClass int

const (
	// Success means the request succeeded (e.g. 2xx).
	Success ErrorClass = iota
	// Transient means the failure is retriable (e.g. 429, 503, connection
	// reset).
	Transient
	// Permanent means the failure is non-retriable (e.g. 400, 404).
	Permanent
)

func (c ErrorClass) String() string {
	switch c {
	case Success:
		return "success"
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// StatusPredicate reports whether a status code should be retried on top of
// the built-in transient set.
type StatusPredicate func(statusCode int) bool

// Outcome is the result of one attempt as seen by the classifier: either a
// transport error that never produced a status, or a received status code.
type Outcome struct {
	Err        error
	StatusCode int
}

// StatusIn returns a [StatusPredicate] matching exactly the given codes.
func StatusIn(codes ...int) StatusPredicate {
	set := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}

	return func(statusCode int) bool {
		_, ok := set[statusCode]
		return ok
	}
}

// IsTransientStatus reports whether code is retriable on its own merits:
// 408 Request Timeout, 429 Too Many Requests or any 5xx.
func IsTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		(code >= 500 && code <= 599)
}

// IsRetryable reports whether an attempt's outcome may be retried.
//
// Transport errors (no status received) are always retryable. A received
// status is retryable if it is transient or, when extra is non-nil, if extra
// accepts it. extra is never consulted for transport errors.
//
// IsRetryable is pure and safe for concurrent use as long as extra is.
func IsRetryable(o Outcome, extra StatusPredicate) bool {
	if o.StatusCode == 0 {
		return o.Err != nil
	}

	if IsTransientStatus(o.StatusCode) {
		return true
	}

	return extra != nil && extra(o.StatusCode)
}

// Classify maps an outcome to an [ErrorClass] using [IsRetryable].
func Classify(o Outcome, extra StatusPredicate) ErrorClass {
	switch {
	case IsRetryable(o, extra):
		return Transient
	case o.Err == nil && o.StatusCode >= 200 && o.StatusCode < 300:
		return Success
	default:
		return Permanent
	}
}

// outcomeOf rebuilds the classifier input from an error escaping an attempt.
func outcomeOf(err error) Outcome {
	var se *StatusError
	if errors.As(err, &se) {
		return Outcome{Err: err, StatusCode: se.StatusCode}
	}

	return Outcome{Err: err}
}
