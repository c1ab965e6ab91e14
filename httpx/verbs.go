package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/resilient"
)

const (
	contentTypeJSON = "application/json"
	acceptJSON      = "application/json"
)

// Get issues a GET and decodes the JSON response into T. An empty body
// yields the zero value of T.
//
//nolint:ireturn // generic type parameter T, not an interface
func Get[T any](ctx context.Context, c *Client, target string, opts ...CallOption) (T, error) {
	ov := newCallOverrides(opts)

	resp, err := c.execute(ctx, http.MethodGet, target, payload{accept: acceptJSON}, &ov)
	if err != nil {
		var zero T
		return zero, err
	}

	return decodeJSON[T](resp)
}

// GetText issues a GET and returns the response body as a string.
func (c *Client) GetText(ctx context.Context, target string, opts ...CallOption) (string, error) {
	ov := newCallOverrides(opts)

	resp, err := c.execute(ctx, http.MethodGet, target, payload{}, &ov)
	if err != nil {
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("httpx: read response body: %w", err)
	}

	return string(body), nil
}

// PostJSON encodes body as JSON, POSTs it and decodes the JSON response.
//
//nolint:ireturn // generic type parameter T, not an interface
func PostJSON[Req, Resp any](
	ctx context.Context,
	c *Client,
	target string,
	body Req,
	opts ...CallOption,
) (Resp, error) {
	return sendJSON[Req, Resp](ctx, c, http.MethodPost, target, body, opts)
}

// PutJSON encodes body as JSON, PUTs it and decodes the JSON response.
//
//nolint:ireturn // generic type parameter T, not an interface
func PutJSON[Req, Resp any](
	ctx context.Context,
	c *Client,
	target string,
	body Req,
	opts ...CallOption,
) (Resp, error) {
	return sendJSON[Req, Resp](ctx, c, http.MethodPut, target, body, opts)
}

// Delete issues a DELETE. Any 2xx status is success; the body is ignored.
func (c *Client) Delete(ctx context.Context, target string, opts ...CallOption) error {
	ov := newCallOverrides(opts)

	_, err := c.execute(ctx, http.MethodDelete, target, payload{}, &ov)

	return err
}

// PostStream uploads a single multipart/form-data part and decodes the
// JSON response into T.
//
// The upload's stream factory is invoked once per attempt, transport and
// per-call retries included, and every stream it returns is closed once
// its attempt's payload is finalized.
//
//nolint:ireturn // generic type parameter T, not an interface
func PostStream[T any](
	ctx context.Context,
	c *Client,
	target string,
	upload Upload,
	opts ...CallOption,
) (T, error) {
	var zero T

	ov := newCallOverrides(opts)

	p, err := upload.payload(c.cfg.MaxRetries > 0)
	if err != nil {
		return zero, resilient.Permanent(err)
	}

	p.accept = acceptJSON

	resp, err := c.execute(ctx, http.MethodPost, target, p, &ov)
	if err != nil {
		return zero, err
	}

	return decodeJSON[T](resp)
}

// Do issues a call with an arbitrary method and optional raw body. The
// response body is fully buffered and may be read after the call returns.
// Non-2xx statuses are returned as [StatusError].
func (c *Client) Do(
	ctx context.Context,
	method, target string,
	body []byte,
	opts ...CallOption,
) (*http.Response, error) {
	ov := newCallOverrides(opts)

	var p payload
	if body != nil {
		p = bytesPayload(body, "")
	}

	return c.execute(ctx, method, target, p, &ov)
}

//nolint:ireturn // generic type parameter T, not an interface
func sendJSON[Req, Resp any](
	ctx context.Context,
	c *Client,
	method, target string,
	body Req,
	opts []CallOption,
) (Resp, error) {
	var zero Resp

	data, err := json.Marshal(body)
	if err != nil {
		return zero, resilient.Permanent(fmt.Errorf("httpx: encode request body: %w", err))
	}

	ov := newCallOverrides(opts)

	p := bytesPayload(data, contentTypeJSON)
	p.accept = acceptJSON

	resp, err := c.execute(ctx, method, target, p, &ov)
	if err != nil {
		return zero, err
	}

	return decodeJSON[Resp](resp)
}

//nolint:ireturn // generic type parameter T, not an interface
func decodeJSON[T any](resp *http.Response) (T, error) {
	var out T

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("httpx: read response body: %w", err)
	}

	if len(data) == 0 {
		return out, nil
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return out, resilient.Permanent(fmt.Errorf("%w: decode: %w", ErrInvalidResponse, err))
	}

	return out, nil
}
