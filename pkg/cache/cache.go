// Package cache provides generic, thread-safe cache implementations with
// pluggable eviction policies.
//
// Three strategies are available:
//   - SimpleCache: no eviction (stores items until deleted)
//   - LRUCache: least-recently-used eviction bounded by size
//   - TTLCache: time-to-live eviction with background cleanup
//
// All implementations collect statistics and can optionally export them as
// Prometheus metrics via functional options.
package cache

import (
	"fmt"

	"github.com/tokenism/geobus/errors"
)

// Cache is the interface all cache implementations satisfy. The cache is
// parameterized by value type V; keys are always strings.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found,
	// zero value and false otherwise.
	Get(key string) (V, bool)

	// Set stores a value with the given key. Returns true if a new entry
	// was created, false if an existing entry was updated.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear() error

	// Size returns the current number of entries in the cache.
	Size() int

	// Keys returns a slice of all keys currently in the cache.
	Keys() []string

	// Stats returns cache statistics, or nil for caches that collect none
	// (the noop cache).
	Stats() *Statistics

	// Close shuts down the cache and releases background resources.
	Close() error
}

// EvictCallback is called when an entry leaves the cache through eviction,
// expiry, deletion or clearing. It receives the key and value of the entry.
type EvictCallback[V any] func(key string, value V)

// validateKey rejects keys that can never be stored.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(fmt.Errorf("key cannot be empty"),
			"cache", "validateKey", "validate key")
	}
	return nil
}
