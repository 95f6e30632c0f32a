package cache

import (
	"time"

	"github.com/tokenism/geobus/metric"
)

// Option configures cache behavior using the functional options pattern.
type Option[V any] func(*cacheOptions[V])

// cacheOptions holds internal configuration for cache instances. Statistics
// are always collected; Prometheus export is opt-in via WithMetrics.
type cacheOptions[V any] struct {
	// metricsReg, when set, exposes cache stats as Prometheus metrics.
	metricsReg *metric.Registry

	// metricsPrefix is used as the component label for Prometheus metrics.
	metricsPrefix string

	// evictCallback is called when items leave the cache.
	evictCallback EvictCallback[V]

	// statsInterval is how often aggregate statistics are refreshed
	// (TTL caches with background cleanup).
	statsInterval time.Duration
}

// WithMetrics enables Prometheus metrics export for cache statistics.
// Ignored when registry is nil or prefix is empty.
func WithMetrics[V any](registry *metric.Registry, prefix string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a callback invoked with the key and value of
// every evicted entry.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) {
		opts.evictCallback = callback
	}
}

// WithStatsInterval sets how often aggregate statistics are updated. Only
// relevant for TTL caches with background cleanup. Ignored when <= 0.
func WithStatsInterval[V any](interval time.Duration) Option[V] {
	return func(opts *cacheOptions[V]) {
		if interval > 0 {
			opts.statsInterval = interval
		}
	}
}

func applyOptions[V any](options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{
		statsInterval: 30 * time.Second,
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
