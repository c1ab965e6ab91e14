// Package httpx is an HTTP client that retries transient failures in two
// independent layers.
//
// The transport layer, a [RetryTransport] installed in the client's
// http.Client, retries every call on transport errors and on 408, 429 and
// 5xx responses. The optional per-call layer, enabled with [WithRetryIf],
// retries failures that survived the transport layer when their status is
// accepted by the call's predicate. Both layers share the client's retry
// budget and backoff algorithm (decorrelated jitter by default), and a hard
// timeout bounds each call as a whole.
//
// Uploads ([PostStream]) take a [BodySource]. A [StreamFactory] is invoked
// once per attempt, so a retried upload never re-reads a consumed stream.
//
// Failures surface as the last real cause: a [StatusError] for non-2xx
// statuses, the transport error otherwise. errors.Is with
// resilient.ErrRetriesExhausted tells whether the budget ran out, and
// [KindOf] maps any failure to its [Kind].
package httpx
