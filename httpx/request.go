package httpx

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
)

// BasicAuth is a username/password pair for the Basic scheme.
type BasicAuth struct {
	Username string
	Password string
}

// CallOverrides holds the per-call settings built from [CallOption]s. One
// instance exists per call and is never shared.
type CallOverrides struct {
	// RetryIf enables the per-call retry layer for matching statuses.
	RetryIf     StatusPredicate
	BasicAuth   *BasicAuth
	Headers     map[string]string
	BearerToken string
}

// CallOption configures a single call.
type CallOption func(*CallOverrides)

// WithBearerToken sets an "Authorization: Bearer" header. An empty token is
// ignored.
func WithBearerToken(token string) CallOption {
	return func(o *CallOverrides) {
		o.BearerToken = token
	}
}

// WithBasicAuth sets an "Authorization: Basic" header. It is independent
// of [WithBearerToken]: when both are given both headers are sent.
func WithBasicAuth(username, password string) CallOption {
	return func(o *CallOverrides) {
		o.BasicAuth = &BasicAuth{Username: username, Password: password}
	}
}

// WithHeader sets a request header. A later value for the same key replaces
// an earlier one.
func WithHeader(key, value string) CallOption {
	return func(o *CallOverrides) {
		if o.Headers == nil {
			o.Headers = make(map[string]string)
		}

		o.Headers[key] = value
	}
}

// WithHeaders merges headers into the call's headers, last write wins.
func WithHeaders(headers map[string]string) CallOption {
	return func(o *CallOverrides) {
		for k, v := range headers {
			WithHeader(k, v)(o)
		}
	}
}

// WithRetryIf retries this call, on top of the client-wide policy, when a
// failure that survived the transport layer carries a status accepted by
// pred. Without it the per-call layer does nothing.
func WithRetryIf(pred StatusPredicate) CallOption {
	return func(o *CallOverrides) {
		o.RetryIf = pred
	}
}

// WithRetryStatus is [WithRetryIf] with [StatusIn].
func WithRetryStatus(codes ...int) CallOption {
	return WithRetryIf(StatusIn(codes...))
}

func newCallOverrides(opts []CallOption) CallOverrides {
	var ov CallOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&ov)
		}
	}

	return ov
}

// payload describes how to produce the body of each attempt.
type payload struct {
	// open yields a fresh body per invocation. Nil means no body.
	open        func() (io.ReadCloser, error)
	data        []byte
	contentType string
	accept      string
	hasData     bool
}

func bytesPayload(data []byte, contentType string) payload {
	return payload{data: data, hasData: true, contentType: contentType}
}

// assemble builds the request of one attempt. It applies, in order: target
// and method, client default headers, the payload's content type, call
// headers, bearer token and basic auth.
//
// It never mutates client state; the hard timeout is carried by ctx.
func (c *Client) assemble(
	ctx context.Context,
	method, target string,
	p payload,
	ov *CallOverrides,
) (*http.Request, error) {
	var body io.Reader

	switch {
	case p.hasData:
		body = bytes.NewReader(p.data)
	case p.open != nil:
		rc, err := p.open()
		if err != nil {
			return nil, err
		}

		body = rc
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		if rc, ok := body.(io.Closer); ok {
			_ = rc.Close()
		}

		return nil, fmt.Errorf("httpx: build request: %w", err)
	}

	if p.open != nil {
		req.GetBody = p.open
	}

	for key, values := range c.cfg.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	if p.contentType != "" {
		req.Header.Set("Content-Type", p.contentType)
	}

	if p.accept != "" {
		req.Header.Set("Accept", p.accept)
	}

	for key, value := range ov.Headers {
		req.Header.Set(key, value)
	}

	if ov.BearerToken != "" {
		req.Header.Add("Authorization", "Bearer "+ov.BearerToken)
	}

	if ov.BasicAuth != nil {
		req.Header.Add("Authorization", "Basic "+basicAuth(ov.BasicAuth))
	}

	return req, nil
}

// basicAuth encodes credentials per RFC 7617.
func basicAuth(a *BasicAuth) string {
	return base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
}
