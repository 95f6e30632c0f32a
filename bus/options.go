package bus

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/tokenism/geobus/errors"
	"github.com/tokenism/geobus/metric"
)

// Logger is the minimal logging interface the client binds to. Printf is
// informational, Errorf reports failures, Debugf traces per-message
// detail. The default implementation forwards to log/slog.
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

// slogLogger adapts a *slog.Logger to the Logger interface.
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Printf(format string, v ...any) {
	s.l.Info(fmt.Sprintf(format, v...))
}

func (s slogLogger) Errorf(format string, v ...any) {
	s.l.Error(fmt.Sprintf(format, v...))
}

func (s slogLogger) Debugf(format string, v ...any) {
	s.l.Debug(fmt.Sprintf(format, v...))
}

func defaultLogger() Logger {
	return slogLogger{l: slog.Default().With("component", "bus")}
}

// Option configures a Client during New.
type Option func(*Client) error

// WithURL sets the server URL or comma-separated URL list. The default is
// nats.DefaultURL.
func WithURL(url string) Option {
	return func(c *Client) error {
		if url == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: empty URL", errors.ErrInvalidConfig),
				"bus", "WithURL", "option check")
		}
		c.url = url
		return nil
	}
}

// WithName sets the connection name reported to the server.
func WithName(name string) Option {
	return func(c *Client) error {
		if name != "" {
			c.name = name
		}
		return nil
	}
}

// WithLogger sets a custom logger. A nil logger restores the slog default.
func WithLogger(logger Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = defaultLogger()
		}
		c.logger = logger
		return nil
	}
}

// WithSlog binds the client's logging to a specific slog logger.
func WithSlog(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = slogLogger{l: logger.With("component", "bus")}
		return nil
	}
}

// WithTimeout sets the dial timeout and the per-publish acknowledgment
// wait applied when the caller's context carries no deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout > 0 {
			c.timeout = timeout
		}
		return nil
	}
}

// WithDrainTimeout bounds how long Close waits for in-flight messages to
// drain before forcing the connection shut.
func WithDrainTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout > 0 {
			c.drainTimeout = timeout
		}
		return nil
	}
}

// WithMaxReconnects sets the reconnection attempt limit for the underlying
// connection. Negative means reconnect forever, which is the default.
func WithMaxReconnects(n int) Option {
	return func(c *Client) error {
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the pause between reconnection attempts.
func WithReconnectWait(wait time.Duration) Option {
	return func(c *Client) error {
		if wait > 0 {
			c.reconnectWait = wait
		}
		return nil
	}
}

// WithPingInterval sets the protocol ping cadence used to detect dead
// connections.
func WithPingInterval(interval time.Duration) Option {
	return func(c *Client) error {
		if interval > 0 {
			c.pingInterval = interval
		}
		return nil
	}
}

// WithCredentials authenticates with a NATS credentials file.
func WithCredentials(credsFile string) Option {
	return func(c *Client) error {
		c.credsFile = credsFile
		return nil
	}
}

// WithToken authenticates with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithTLS supplies a TLS configuration for the connection.
func WithTLS(cfg *tls.Config) Option {
	return func(c *Client) error {
		c.tlsConfig = cfg
		return nil
	}
}

// WithJetStreamDomain scopes the JetStream context to a named domain, for
// deployments running isolated JetStream on leaf nodes.
func WithJetStreamDomain(domain string) Option {
	return func(c *Client) error {
		c.jsDomain = domain
		return nil
	}
}

// WithCircuitThreshold sets how many consecutive connection failures open
// the circuit breaker. Values below 1 keep the default of 5.
func WithCircuitThreshold(threshold int) Option {
	return func(c *Client) error {
		if threshold >= 1 {
			c.circuitThreshold = int32(threshold)
		}
		return nil
	}
}

// WithMaxBackoff caps the circuit breaker's exponential backoff. Values
// below one second keep the default of one minute.
func WithMaxBackoff(limit time.Duration) Option {
	return func(c *Client) error {
		if limit >= time.Second {
			c.maxBackoff = limit
		}
		return nil
	}
}

// WithPublishRetry tunes the retry policy Publish applies to
// connection-lost failures. Timeouts are never retried regardless of this
// policy.
func WithPublishRetry(cfg errors.RetryConfig) Option {
	return func(c *Client) error {
		if cfg.MaxRetries < 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: negative MaxRetries", errors.ErrInvalidConfig),
				"bus", "WithPublishRetry", "option check")
		}
		c.publishRetry = cfg.ToRetryConfig()
		return nil
	}
}

// WithHealthInterval sets the cadence of the background RTT health probe
// started on Connect. Zero or negative disables the probe.
func WithHealthInterval(interval time.Duration) Option {
	return func(c *Client) error {
		c.healthInterval = interval
		return nil
	}
}

// WithHealthChange registers a callback invoked whenever the health probe
// observes a transition between healthy and unhealthy.
func WithHealthChange(cb func(healthy bool)) Option {
	return func(c *Client) error {
		c.onHealthChange = cb
		return nil
	}
}

// WithDisconnectCallback registers a callback invoked when the connection
// drops. Reconnection continues in the background.
func WithDisconnectCallback(cb func(err error)) Option {
	return func(c *Client) error {
		c.onDisconnect = cb
		return nil
	}
}

// WithReconnectCallback registers a callback invoked after the connection
// is reestablished.
func WithReconnectCallback(cb func()) Option {
	return func(c *Client) error {
		c.onReconnect = cb
		return nil
	}
}

// WithMetrics wires the client to the shared metrics registry: connection
// gauge, RTT, reconnect counter and circuit breaker state.
func WithMetrics(registry *metric.Registry) Option {
	return func(c *Client) error {
		if registry != nil {
			c.metrics = registry.CoreMetrics()
		}
		return nil
	}
}
