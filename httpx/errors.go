package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/byte4ever/resilient"
)

type httpxError string

func (e httpxError) Error() string { return string(e) }

// Local precondition errors. They are raised before or instead of a network
// exchange, are always marked permanent and are never retried.
var (
	// ErrNilStream is returned when an upload stream factory fails or yields
	// a nil stream.
	ErrNilStream error = httpxError("httpx: stream factory returned no stream")
	// ErrSingleUseStream is returned when a single, non-rewindable stream is
	// uploaded through a client or call that may retry.
	ErrSingleUseStream error = httpxError("httpx: single-use stream cannot be retried; use StreamFactory or BufferedStream")
	// ErrInvalidUpload is returned for an upload without a field name or
	// body source.
	ErrInvalidUpload error = httpxError("httpx: invalid upload")
	// ErrInvalidConfig is returned by [NewClient] for out-of-range settings.
	ErrInvalidConfig error = httpxError("httpx: invalid config")
)

// ErrInvalidResponse is returned when a 2xx response body cannot be decoded
// into the requested type. The exchange succeeded, so it is never retried,
// but it is the server's fault rather than the caller's.
var ErrInvalidResponse error = httpxError("httpx: invalid response body")

// maxErrorBody caps how much of a failed response body a [StatusError]
// keeps.
const maxErrorBody = 64 << 10

// StatusError is returned when a call ends on a non-2xx status. It carries
// the real status of the last attempt, whatever the retry layers did before.
type StatusError struct {
	Header     http.Header
	Status     string
	Body       []byte
	StatusCode int

	// resp is the undrained response of an intermediate transport attempt.
	resp *http.Response
}

// Error returns a human-readable description of the status error.
func (e *StatusError) Error() string {
	if e.Status != "" {
		return "http status " + e.Status
	}

	return "http status " + strconv.Itoa(e.StatusCode)
}

// Kind is the failure taxonomy of a call.
type Kind int

const (
	// KindNone means no failure.
	KindNone Kind = iota
	// KindTransientTransport is a connection-level failure.
	KindTransientTransport
	// KindTransientStatus is a status in the built-in transient set.
	KindTransientStatus
	// KindPermanentStatus is any other non-2xx status.
	KindPermanentStatus
	// KindLocalPrecondition is a caller-side invariant violation.
	KindLocalPrecondition
	// KindTimeout is the client's hard timeout firing.
	KindTimeout
	// KindCanceled is cancellation of the caller's context.
	KindCanceled
	// KindInvalidResponse is a 2xx body that could not be decoded.
	KindInvalidResponse
)

var kindNames = [...]string{
	KindNone:               "none",
	KindTransientTransport: "transient_transport",
	KindTransientStatus:    "transient_status",
	KindPermanentStatus:    "permanent_status",
	KindLocalPrecondition:  "local_precondition",
	KindTimeout:            "timeout",
	KindCanceled:           "canceled",
	KindInvalidResponse:    "invalid_response",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}

	return "unknown"
}

// KindOf classifies a failure returned by the client. Statuses are judged
// against the built-in transient set only; predicates supplied at
// construction or per call are not known here.
func KindOf(err error) Kind {
	var se *StatusError

	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, resilient.ErrTimeout):
		return KindTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.As(err, &se):
		if IsTransientStatus(se.StatusCode) {
			return KindTransientStatus
		}

		return KindPermanentStatus
	case errors.Is(err, ErrInvalidResponse):
		return KindInvalidResponse
	case resilient.IsPermanent(err):
		return KindLocalPrecondition
	default:
		return KindTransientTransport
	}
}
