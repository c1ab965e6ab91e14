package httpx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/byte4ever/resilient"
	"github.com/byte4ever/resilient/internal/logging"
)

// Defaults applied by [NewClient].
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 200 * time.Millisecond
	DefaultTimeout    = 30 * time.Second
)

// Config is the construction-time configuration of a [Client]. It is
// immutable once the client exists.
type Config struct {
	// RetryIf extends the transport layer's transient set for every call.
	RetryIf StatusPredicate
	// Transport performs the exchanges. Nil means http.DefaultTransport.
	Transport http.RoundTripper
	// Logger receives retry notifications. Nil means the package logger.
	Logger *zap.Logger
	// Clock drives backoff sleeps. Nil means [resilient.RealClock].
	Clock resilient.Clock
	// Backoff replaces the decorrelated jitter schedule.
	Backoff resilient.BackoffStrategy
	// BackoffName selects a built-in strategy by name when Backoff is nil.
	// It is seeded with the final BaseDelay and MaxDelay at construction.
	BackoffName string
	// Hooks observes both retry layers and the hard timeout.
	Hooks resilient.Hooks
	// Headers are sent with every call, before call headers.
	Headers http.Header
	// MaxRetries is the retry budget shared by both layers.
	MaxRetries int
	// BaseDelay seeds the backoff schedule.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff wait. Zero means no cap.
	MaxDelay time.Duration
	// Timeout bounds each call as a whole, retries and sleeps included.
	// Zero disables it.
	Timeout time.Duration
}

// DefaultConfig returns the configuration used when no option is given:
// 3 retries, 200ms base delay and a 30s timeout.
func DefaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		Timeout:    DefaultTimeout,
	}
}

func (c *Config) validate() error {
	switch {
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max retries %d is negative", ErrInvalidConfig, c.MaxRetries)
	case c.BaseDelay <= 0:
		return fmt.Errorf("%w: base delay %s must be positive", ErrInvalidConfig, c.BaseDelay)
	case c.MaxDelay < 0:
		return fmt.Errorf("%w: max delay %s is negative", ErrInvalidConfig, c.MaxDelay)
	case c.Timeout < 0:
		return fmt.Errorf("%w: timeout %s is negative", ErrInvalidConfig, c.Timeout)
	default:
		return nil
	}
}

// Option configures a [Client] at construction.
type Option func(*Config)

// WithMaxRetries sets the retry budget. 0 disables retries.
func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

// WithBaseDelay sets the base delay of the backoff schedule.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Config) { c.BaseDelay = d }
}

// WithMaxDelay caps every backoff wait.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) { c.MaxDelay = d }
}

// WithTimeout sets the hard timeout of each call. 0 disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithTransportRetryIf makes the transport layer also retry statuses
// accepted by pred, for every call of the client.
func WithTransportRetryIf(pred StatusPredicate) Option {
	return func(c *Config) { c.RetryIf = pred }
}

// WithTransportRetryStatus is [WithTransportRetryIf] with [StatusIn].
func WithTransportRetryStatus(codes ...int) Option {
	return WithTransportRetryIf(StatusIn(codes...))
}

// WithTransport sets the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Config) { c.Transport = rt }
}

// WithLogger sets the logger receiving retry notifications.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithHooks adds observers of retries, exhaustion and timeouts. Repeated
// use joins the hooks.
func WithHooks(hooks resilient.Hooks) Option {
	return func(c *Config) { c.Hooks = resilient.JoinHooks(c.Hooks, hooks) }
}

// WithClock sets the clock driving backoff sleeps.
func WithClock(clock resilient.Clock) Option {
	return func(c *Config) { c.Clock = clock }
}

// WithBackoff replaces the default decorrelated jitter schedule.
func WithBackoff(strategy resilient.BackoffStrategy) Option {
	return func(c *Config) {
		c.Backoff = strategy
		c.BackoffName = ""
	}
}

// WithBackoffName selects a built-in strategy: "decorrelated_jitter",
// "constant", "exponential", "linear" or "exponential_jitter". It is built
// by [NewClient] from the final base and max delay, so a later
// [WithBaseDelay] still applies.
func WithBackoffName(name string) Option {
	return func(c *Config) {
		c.BackoffName = name
		c.Backoff = nil
	}
}

// WithDefaultHeader adds a header sent with every call.
func WithDefaultHeader(key, value string) Option {
	return func(c *Config) {
		if c.Headers == nil {
			c.Headers = make(http.Header)
		}

		c.Headers.Add(key, value)
	}
}

// Client issues HTTP calls through two retry layers: a transport layer
// applied to every call, and an optional per-call layer enabled by
// [WithRetryIf]. Both layers share one retry budget and one backoff
// algorithm.
//
// A Client is safe for concurrent use.
//
// Pattern: Adapter — bridges net/http and the retry engine by translating
// HTTP outcomes into retry classification.
type Client struct {
	hc       *http.Client
	strategy resilient.BackoffStrategy
	logger   *zap.Logger
	cfg      Config
}

// NewClient returns a client configured by opts on top of [DefaultConfig].
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Clock == nil {
		cfg.Clock = resilient.RealClock{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.New("httpx", zap.String("component", "client"))
	}

	strategy := cfg.Backoff
	if strategy == nil {
		name := cfg.BackoffName
		if name == "" {
			name = "decorrelated_jitter"
		}

		var err error

		strategy, err = parseBackoffStrategy(name, cfg.BaseDelay, cfg.MaxDelay)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	rt := &RetryTransport{
		Base:       cfg.Transport,
		Strategy:   strategy,
		RetryIf:    cfg.RetryIf,
		Hooks:      cfg.Hooks,
		Logger:     logger,
		Clock:      cfg.Clock,
		MaxRetries: cfg.MaxRetries,
	}

	return &Client{
		hc:       &http.Client{Transport: rt},
		strategy: strategy,
		logger:   logger,
		cfg:      cfg,
	}, nil
}

// StandardClient returns an *http.Client sending through the client's
// transport retry layer. It has no hard timeout and no per-call layer.
func (c *Client) StandardClient() *http.Client {
	return &http.Client{Transport: c.hc.Transport}
}

// execute runs one logical call: the hard timeout wraps the per-call layer,
// which wraps request assembly and the transport layer.
//
// The returned response has a fully buffered body. A non-2xx final status
// is returned as a [StatusError].
func (c *Client) execute(
	ctx context.Context,
	method, target string,
	p payload,
	ov *CallOverrides,
) (*http.Response, error) {
	trail := &attemptTrail{}
	ctx = withTrail(ctx, trail)

	hooks := resilient.JoinHooks(
		resilient.LogHooks(logging.ForCall(c.logger, method, target)),
		c.cfg.Hooks,
	)

	call := resilient.Chain(
		resilient.TimeoutMiddleware[*http.Response](c.cfg.Timeout, &hooks, c.cfg.Clock),
		c.callLayer(ov.RetryIf, &hooks),
	)(func(ctx context.Context) (*http.Response, error) {
		req, err := c.assemble(ctx, method, target, p, ov)
		if err != nil {
			return nil, resilient.Permanent(err)
		}

		return c.send(req)
	})

	resp, err := call(ctx)
	if err != nil {
		exhausted := trail.exhausted.Load() || errors.Is(err, resilient.ErrRetriesExhausted)

		return nil, resilient.WithAttempts(err, trail.total(), exhausted)
	}

	return resp, nil
}

// send performs one transport sequence and buffers the response body.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err //nolint:wrapcheck // *url.Error already names method and url
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return nil, &StatusError{
			Header:     resp.Header,
			Status:     resp.Status,
			Body:       body,
			StatusCode: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpx: read response body: %w", err)
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))

	return resp, nil
}
