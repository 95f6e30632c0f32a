// Package cache provides thread-safe, generic caching with multiple eviction
// policies, built-in statistics and optional Prometheus metrics.
//
// # Overview
//
// Three cache strategies cover the needs of geobus services:
//   - Simple: no eviction (manual cleanup only)
//   - LRU: least-recently-used eviction bounded by size
//   - TTL: time-to-live expiration with background cleanup
//
// The consumer uses a TTL cache for packet-hash deduplication; the object
// store front-loads reads through an LRU cache. A noop implementation backs
// deployments that disable caching.
//
// # Quick Start
//
// LRU cache with capacity limit:
//
//	c, err := cache.NewLRU[[]byte](1000)
//	if err != nil {
//	    return err
//	}
//	c.Set("key", payload)
//	value, ok := c.Get("key")
//
// TTL cache with expiration:
//
//	c, err := cache.NewTTL[time.Time](ctx, 30*time.Minute, 5*time.Minute)
//
// Config-driven construction:
//
//	c, err := cache.NewFromConfig[[]byte](ctx, cfg.Cache,
//	    cache.WithMetrics[[]byte](registry, "geomstore"),
//	)
//
// # Observability
//
// Every cache collects statistics (hits, misses, sets, deletes, evictions,
// size high-water mark) accessible via Stats(). WithMetrics additionally
// exports the same counters as Prometheus metrics labeled by component.
//
// # Lifecycle
//
// TTL caches run a cleanup goroutine; call Close() (or cancel the
// constructor context) to stop it. Close is a no-op for other strategies.
package cache
