package httpx

import (
	"fmt"
	"os"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/resilient"
)

type (
	// configFile is the top-level JSON structure.
	configFile struct {
		Clients map[string]ClientConfig `json:"clients"`
	}

	// ClientConfig holds the decoded configuration of one client. Embed it
	// in your own app config struct for JSON or YAML unmarshaling, then call
	// [BuildOptions] to obtain options for [NewClient]. Unset fields keep
	// the defaults of [DefaultConfig].
	ClientConfig struct {
		// MaxRetries is the retry budget shared by both layers.
		// Optional. Example: 3.
		MaxRetries *int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
		// BaseDelay seeds the backoff schedule.
		// Optional. Parsed via time.ParseDuration. Example: "200ms".
		BaseDelay *string `json:"base_delay,omitempty" yaml:"base_delay,omitempty"`
		// MaxDelay caps a single backoff wait.
		// Optional. Parsed via time.ParseDuration. Example: "5s".
		MaxDelay *string `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
		// Timeout bounds each call, retries included. "0s" disables it.
		// Optional. Parsed via time.ParseDuration. Example: "30s".
		Timeout *string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
		// Backoff is the backoff strategy name.
		// Optional. One of: "decorrelated_jitter" (default), "constant",
		// "exponential", "linear", "exponential_jitter".
		Backoff *string `json:"backoff,omitempty" yaml:"backoff,omitempty"`
		// Headers are sent with every call.
		// Optional. Example: {"User-Agent": "billing/1.0"}.
		Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
		// RetryStatuses extends the transport layer's transient set.
		// Optional. Example: [409].
		RetryStatuses []int `json:"retry_statuses,omitempty" yaml:"retry_statuses,omitempty"`
	}

	// ConfigSet is a validated set of named client configurations.
	ConfigSet struct {
		clients map[string]ClientConfig
	}
)

// LoadConfig reads a JSON configuration file of named clients. Every entry
// is validated eagerly so errors surface at load time; clients are only
// built by [ConfigSet.NewClient].
//
// Duration values (base_delay, max_delay, timeout) are parsed using
// [time.ParseDuration].
func LoadConfig(path string) (*ConfigSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("httpx: read config: %w", err)
	}

	var cfg configFile
	if err = json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("httpx: parse config: %w", err)
	}

	for name, cc := range cfg.Clients {
		opts, buildErr := BuildOptions(&cc)
		if buildErr != nil {
			return nil, fmt.Errorf("httpx: client %q: %w", name, buildErr)
		}

		built := DefaultConfig()
		for _, opt := range opts {
			opt(&built)
		}

		if validErr := built.validate(); validErr != nil {
			return nil, fmt.Errorf("httpx: client %q: %w", name, validErr)
		}
	}

	if cfg.Clients == nil {
		cfg.Clients = map[string]ClientConfig{}
	}

	return &ConfigSet{clients: cfg.Clients}, nil
}

// Names returns the configured client names in sorted order.
func (s *ConfigSet) Names() []string {
	names := make([]string, 0, len(s.clients))
	for name := range s.clients {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// NewClient builds the client configured under name. Options in opts are
// applied after the configured ones, so they take precedence (loggers,
// hooks, transports and the like). An unknown name yields a client built
// from opts alone.
func (s *ConfigSet) NewClient(name string, opts ...Option) (*Client, error) {
	var all []Option

	if cc, ok := s.clients[name]; ok {
		configOpts, err := BuildOptions(&cc)
		if err != nil {
			return nil, fmt.Errorf("httpx: client %q: %w", name, err)
		}

		all = append(all, configOpts...)
	}

	all = append(all, opts...)

	return NewClient(all...)
}

// BuildOptions converts a [ClientConfig] into options for [NewClient]. Use
// this when you embed [ClientConfig] in your own config struct and want to
// build a client without going through [LoadConfig].
func BuildOptions(cc *ClientConfig) ([]Option, error) {
	var opts []Option

	if cc.MaxRetries != nil {
		opts = append(opts, WithMaxRetries(*cc.MaxRetries))
	}

	if cc.BaseDelay != nil {
		d, err := time.ParseDuration(*cc.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("base_delay: %w", err)
		}

		opts = append(opts, WithBaseDelay(d))
	}

	if cc.MaxDelay != nil {
		d, err := time.ParseDuration(*cc.MaxDelay)
		if err != nil {
			return nil, fmt.Errorf("max_delay: %w", err)
		}

		opts = append(opts, WithMaxDelay(d))
	}

	if cc.Timeout != nil {
		d, err := time.ParseDuration(*cc.Timeout)
		if err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}

		opts = append(opts, WithTimeout(d))
	}

	if cc.Backoff != nil {
		if _, err := parseBackoffStrategy(*cc.Backoff, DefaultBaseDelay, 0); err != nil {
			return nil, fmt.Errorf("backoff: %w", err)
		}

		opts = append(opts, WithBackoffName(*cc.Backoff))
	}

	if len(cc.RetryStatuses) > 0 {
		opts = append(opts, WithTransportRetryStatus(cc.RetryStatuses...))
	}

	for key, value := range cc.Headers {
		opts = append(opts, WithDefaultHeader(key, value))
	}

	return opts, nil
}

// parseBackoffStrategy maps a backoff name to a strategy seeded with base.
// maxDelay only bounds the decorrelated jitter strategy.
//
//nolint:ireturn // returns interface by design for strategy pattern
func parseBackoffStrategy(
	name string,
	base, maxDelay time.Duration,
) (resilient.BackoffStrategy, error) {
	switch name {
	case "decorrelated_jitter":
		return resilient.DecorrelatedJitterBackoff(base, resilient.WithCap(maxDelay)), nil
	case "constant":
		return resilient.ConstantBackoff(base), nil
	case "exponential":
		return resilient.ExponentialBackoff(base), nil
	case "linear":
		return resilient.LinearBackoff(base), nil
	case "exponential_jitter":
		return resilient.ExponentialJitterBackoff(base), nil
	default:
		return nil, fmt.Errorf("unknown backoff strategy: %q", name)
	}
}
