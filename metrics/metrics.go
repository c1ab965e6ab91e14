// Package metrics exports retry activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/byte4ever/resilient"
)

// Collector counts retries, exhausted budgets and hard timeouts per retry
// layer. Feed it by passing [Collector.Hooks] to the client. It is safe for
// concurrent use.
type Collector struct {
	retriesTotal   *prometheus.CounterVec
	exhaustedTotal *prometheus.CounterVec
	retryDelay     *prometheus.HistogramVec
	timeoutsTotal  prometheus.Counter
}

// NewCollector creates a collector on the default registerer.
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector using the supplied
// registerer. It panics if the metrics are already registered there.
func NewCollectorWithRegistry(registry prometheus.Registerer) *Collector {
	return &Collector{
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "httpx_retries_total",
				Help: "Total number of retries scheduled",
			},
			[]string{"layer"},
		),
		exhaustedTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "httpx_retries_exhausted_total",
				Help: "Total number of calls whose retry budget ran out",
			},
			[]string{"layer"},
		),
		retryDelay: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "httpx_retry_delay_seconds",
				Help:    "Backoff waits scheduled before retries, in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"layer"},
		),
		timeoutsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "httpx_timeouts_total",
				Help: "Total number of calls stopped by the hard timeout",
			},
		),
	}
}

// RecordRetry counts one retry of layer and its scheduled wait.
func (c *Collector) RecordRetry(layer resilient.Layer, delay time.Duration) {
	if c == nil {
		return
	}

	c.retriesTotal.WithLabelValues(string(layer)).Inc()
	c.retryDelay.WithLabelValues(string(layer)).Observe(delay.Seconds())
}

// RecordExhausted counts one exhausted budget of layer.
func (c *Collector) RecordExhausted(layer resilient.Layer) {
	if c == nil {
		return
	}

	c.exhaustedTotal.WithLabelValues(string(layer)).Inc()
}

// RecordTimeout counts one hard timeout.
func (c *Collector) RecordTimeout() {
	if c == nil {
		return
	}

	c.timeoutsTotal.Inc()
}

// Hooks returns hooks recording into c.
func (c *Collector) Hooks() resilient.Hooks {
	return resilient.Hooks{
		OnRetry: func(ev resilient.RetryEvent) {
			c.RecordRetry(ev.Layer, ev.Delay)
		},
		OnExhausted: func(ev resilient.ExhaustedEvent) {
			c.RecordExhausted(ev.Layer)
		},
		OnTimeout: func(time.Duration) {
			c.RecordTimeout()
		},
	}
}
