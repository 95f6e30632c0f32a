// Package retry provides exponential backoff retry logic for transient failures.
//
// # Overview
//
// A minimal retry mechanism with exponential backoff and jitter, used for
// transient failures in bus operations, stream provisioning, and service
// startup.
//
// # Core Functions
//
//   - Do: execute a function with retry and exponential backoff
//   - DoWithResult: same, returning both result and error
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (normal operations)
//   - Quick(): 10 attempts, 50ms-1s delay (service startup)
//   - Persistent(): 30 attempts, 200ms-10s delay (critical resources)
//
// # Usage
//
// Basic retry with defaults:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
//	    return client.Connect(ctx)
//	})
//
// Retry with result:
//
//	stream, err := retry.DoWithResult(ctx, retry.Quick(), func(ctx context.Context) (jetstream.Stream, error) {
//	    return js.Stream(ctx, streamName)
//	})
//
// Mark an error as not worth retrying:
//
//	return retry.NonRetryable(err)
//
// # Design Notes
//
// The package is intentionally minimal: no circuit breaker (the bus client
// carries its own), no metrics collection (instrument at the call site), no
// error classification (callers wrap with the errors package). All
// operations respect context cancellation, both during execution and during
// backoff sleeps.
package retry
