// Package errors provides standardized error handling patterns for geobus.
//
// # Overview
//
// The package implements a three-class error classification system for
// services exchanging geometry packets over a durable bus: Transient
// (temporary, retryable), Invalid (bad input, non-retryable), and Fatal
// (unrecoverable, stop processing).
//
// Classification enables components to make retry and shutdown decisions
// without string matching on error text. It integrates with Go's standard
// error handling, supporting errors.Is(), errors.As(), and wrapping chains.
//
// # Quick Start
//
// Return standard error variables for known conditions:
//
//	if !connected {
//	    return errors.ErrNoConnection
//	}
//
// Wrap errors with component context:
//
//	if err := codec.Decode(data); err != nil {
//	    return errors.WrapInvalid(err, "Tap", "handle", "decode packet")
//	}
//
// Make retry decisions based on class:
//
//	if err := client.Publish(ctx, subject, data); err != nil {
//	    if errors.IsTransient(err) {
//	        // safe to retry with backoff
//	    } else if errors.IsFatal(err) {
//	        // stop and escalate
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All wrapping follows the format "component.method: action failed: %w".
// Three wrappers set the classification explicitly:
//
//	errors.WrapTransient(err, "Client", "Publish", "publish to stream")
//	errors.WrapInvalid(err, "Codec", "Decode", "validate envelope")
//	errors.WrapFatal(err, "Client", "Connect", "exhausted reconnect budget")
//
// The plain Wrap() adds context without changing classification.
//
// # Classification Rules
//
// Publish timeouts are classified transient but the bus client never
// retries them itself: a timed-out publish may have been accepted by the
// server, so retrying risks a duplicate and the decision belongs to the
// caller. Connection losses are transient and retried with capped backoff;
// once the budget is exhausted the client returns ErrUnavailable, which is
// fatal. Codec decode failures are invalid and never retried.
//
// # Retry Integration
//
// RetryConfig bridges to the retry package:
//
//	cfg := errors.DefaultRetryConfig().ToRetryConfig()
//	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
//	    return client.Publish(ctx, subject, data)
//	})
package errors
