package geomstore

import (
	"fmt"
	"strings"

	"github.com/tokenism/geobus/errors"
	"github.com/tokenism/geobus/pkg/cache"
)

// Config tunes a geometry packet archive.
type Config struct {
	// Bucket names the ObjectStore bucket backing the archive.
	Bucket string `json:"bucket"`

	// Compression enables s2 compression of stored payloads. Objects
	// record their encoding, so compressed and plain objects can share
	// a bucket.
	Compression bool `json:"compression"`

	// MaxBytes caps the bucket size. Zero means unlimited.
	MaxBytes int64 `json:"max_bytes,omitempty"`

	// Cache configures the read-side cache holding decompressed
	// payloads. Disabled caches turn every Get into a bucket fetch.
	Cache cache.Config `json:"cache"`
}

// DefaultConfig returns the archive configuration used when none is given:
// compressed payloads and a small LRU over recent reads.
func DefaultConfig() Config {
	return Config{
		Bucket:      "geometry-packets",
		Compression: true,
		Cache: cache.Config{
			Enabled:  true,
			Strategy: cache.StrategyLRU,
			MaxSize:  512,
		},
	}
}

// Validate checks the configuration before any bucket access.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "geomstore", "Validate",
			"bucket is required")
	}
	if strings.ContainsAny(c.Bucket, ". *>/\t") {
		return errors.WrapInvalid(
			fmt.Errorf("%w: bucket %q must be a single plain token", errors.ErrInvalidConfig, c.Bucket),
			"geomstore", "Validate", "bucket name check")
	}
	if c.MaxBytes < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: max_bytes must not be negative, got %d", errors.ErrInvalidConfig, c.MaxBytes),
			"geomstore", "Validate", "size cap check")
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	return nil
}
