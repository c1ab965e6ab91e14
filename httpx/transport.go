package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/byte4ever/resilient"
	"github.com/byte4ever/resilient/internal/logging"
)

// ConnectTimeout bounds connection establishment on [DefaultTransport].
const ConnectTimeout = 5 * time.Second

// respDrainLimit is how much of a retried response body is read before the
// connection is released.
const respDrainLimit = 4096

// DefaultTransport returns a pooled *http.Transport with similar defaults to
// http.DefaultTransport but a private connection pool. Only use it for
// transports that are re-used, as pooled connections outlive single calls.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   runtime.GOMAXPROCS(0) + 1,
	}
}

// RetryTransport is an [http.RoundTripper] that retries every request sent
// through it, whether or not the caller knows about retries.
//
// Transport errors and responses accepted by [IsRetryable] (with RetryIf as
// the extra predicate) are retried up to MaxRetries times, waiting between
// attempts according to Strategy. Every retry is reported to Hooks and
// logged to Logger before the sleep.
//
// A request whose body cannot be regenerated (non-nil Body without GetBody)
// is attempted exactly once. The fields must not be modified once the
// transport is in use.
type RetryTransport struct {
	// Base performs the actual exchanges. Nil means http.DefaultTransport.
	Base     http.RoundTripper
	Strategy resilient.BackoffStrategy
	RetryIf  StatusPredicate
	Hooks    resilient.Hooks
	// Logger receives retry notifications. Nil means the package logger.
	Logger     *zap.Logger
	Clock      resilient.Clock
	MaxRetries int
}

// RoundTrip implements [http.RoundTripper].
//
// The returned response is the first success, the first permanent status,
// or the last retryable status once the budget is spent; its body is left
// unread. Intermediate retryable responses are drained and closed.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	retries := t.MaxRetries
	if !rewindable(req) {
		retries = 0
	}

	var (
		attempts int
		last     *http.Response
	)

	hooks := t.hooksFor(req)

	resp, err := resilient.DoRetry(
		ctx,
		func(ctx context.Context) (*http.Response, error) {
			attempts++

			discard(last)
			last = nil

			attemptReq, err := attemptRequest(ctx, req, attempts)
			if err != nil {
				return nil, resilient.Permanent(err)
			}

			resp, err := t.base().RoundTrip(attemptReq)
			if err != nil {
				return nil, err
			}

			if IsRetryable(Outcome{StatusCode: resp.StatusCode}, t.RetryIf) {
				last = resp

				return nil, &StatusError{
					Header:     resp.Header,
					Status:     resp.Status,
					StatusCode: resp.StatusCode,
					resp:       resp,
				}
			}

			return resp, nil
		},
		resilient.RetryParams{
			Strategy:   t.Strategy,
			RetryIf:    func(err error) bool { return IsRetryable(outcomeOf(err), t.RetryIf) },
			Hooks:      &hooks,
			Clock:      t.Clock,
			Layer:      resilient.LayerTransport,
			MaxRetries: retries,
		},
	)

	if attempts == 0 && req.Body != nil {
		_ = req.Body.Close()
	}

	exhausted := errors.Is(err, resilient.ErrRetriesExhausted)
	trailFrom(ctx).record(attempts, exhausted)

	if err != nil {
		var se *StatusError
		if last != nil && errors.As(err, &se) && se.resp == last {
			// The surfaced failure is a status: hand the response itself
			// back so the caller sees the real status and body.
			return last, nil
		}

		discard(last)

		return nil, err
	}

	return resp, nil
}

func (t *RetryTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}

	return http.DefaultTransport
}

func (t *RetryTransport) hooksFor(req *http.Request) resilient.Hooks {
	logger := t.Logger
	if logger == nil {
		logger = logging.New("httpx", zap.String("component", "retry_transport"))
	}

	logger = logging.ForCall(logger, req.Method, req.URL.String())

	return resilient.JoinHooks(resilient.LogHooks(logger), t.Hooks)
}

// rewindable reports whether req's body can be produced again for a retry.
func rewindable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// attemptRequest returns the request for the given 1-indexed attempt. The
// first attempt sends req as is; later attempts send a clone carrying a
// fresh body from GetBody.
func attemptRequest(ctx context.Context, req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 1 {
		return req, nil
	}

	clone := req.Clone(ctx)
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("httpx: regenerate request body: %w", err)
	}

	clone.Body = body

	return clone, nil
}

// discard drains a bounded prefix of resp's body and closes it so the
// connection can be reused.
func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, respDrainLimit))
	_ = resp.Body.Close()
}
