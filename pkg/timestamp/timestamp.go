// Package timestamp provides standardized UTC timestamp handling.
//
// Geometry packets carry ISO-8601 (RFC3339) timestamps that are always UTC
// on the wire, while internal bookkeeping (retention math, metrics) uses
// int64 milliseconds since the Unix epoch. This package owns both
// representations so conversions stay in one place.
//
// Zero Value Semantics:
//   - An int64 timestamp of 0 means "not set"
//   - Functions handle zero values gracefully, returning appropriate defaults
//
// Usage:
//
//	// Wall clock for a new packet, UTC, millisecond granularity
//	t := timestamp.Now()
//
//	// Wire representation
//	s := timestamp.Format(timestamp.ToUnixMs(t))
//
//	// Strict wire parsing
//	t, err := timestamp.ParseRFC3339(s)
package timestamp

import (
	"fmt"
	"strconv"
	"time"
)

// Now returns the current time in UTC truncated to millisecond granularity.
// Truncation keeps wire round-trips exact: a packet encoded and decoded
// carries the identical instant.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NowMs returns the current time as Unix milliseconds.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time to Unix milliseconds.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to UTC time.Time.
// Returns zero time if timestamp is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Format converts Unix milliseconds to an RFC3339 UTC string.
// Returns empty string if timestamp is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

// FormatTime renders a time.Time as the wire representation:
// RFC3339 in UTC with nanosecond precision where present.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseRFC3339 parses a wire timestamp strictly. The result is always UTC.
func ParseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: parse %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Parse converts loosely typed timestamp input to Unix milliseconds.
// Supports:
//   - int64/int/int32 (milliseconds if > 1e12, otherwise seconds)
//   - float64 (same heuristic)
//   - string (RFC3339 or numeric Unix timestamp)
//   - time.Time and *time.Time
//   - nil (returns 0)
//
// Returns 0 for invalid input. Used for metadata values of unknown origin;
// wire parsing uses ParseRFC3339.
func Parse(input any) int64 {
	if input == nil {
		return 0
	}

	switch v := input.(type) {
	case int64:
		if v == 0 {
			return 0
		}
		// Values above 1e12 (year 2001 in seconds) are already milliseconds.
		if v > 1e12 {
			return v
		}
		return v * 1000

	case float64:
		if v == 0 {
			return 0
		}
		if v > 1e12 {
			return int64(v)
		}
		return int64(v * 1000)

	case int:
		return Parse(int64(v))

	case int32:
		return Parse(int64(v))

	case string:
		if v == "" {
			return 0
		}

		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ToUnixMs(t)
		}

		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			return Parse(ts)
		}

		if ts, err := strconv.ParseFloat(v, 64); err == nil {
			return Parse(ts)
		}

		return 0

	case time.Time:
		return ToUnixMs(v)

	case *time.Time:
		if v == nil {
			return 0
		}
		return ToUnixMs(*v)

	default:
		return 0
	}
}

// IsZero checks if a timestamp is unset.
func IsZero(ms int64) bool {
	return ms == 0
}

// Since returns the duration since the given timestamp.
// Returns 0 if timestamp is zero.
func Since(ms int64) time.Duration {
	if ms == 0 {
		return 0
	}
	return time.Since(time.UnixMilli(ms))
}

// Between returns the duration between two timestamps.
// Returns 0 if either timestamp is zero.
func Between(start, end int64) time.Duration {
	if start == 0 || end == 0 {
		return 0
	}
	return time.UnixMilli(end).Sub(time.UnixMilli(start))
}

// Validate checks if a timestamp is valid (non-negative and reasonable).
// Returns an error if the timestamp is negative or past year 3000.
func Validate(ms int64) error {
	if ms < 0 {
		return fmt.Errorf("timestamp cannot be negative: %d", ms)
	}
	if ms > 32503680000000 {
		return fmt.Errorf("timestamp too far in future: %d", ms)
	}
	return nil
}
