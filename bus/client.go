package bus

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tokenism/geobus/errors"
	"github.com/tokenism/geobus/metric"
	"github.com/tokenism/geobus/pkg/retry"
)

// Status represents the connection state of a Client.
type Status int32

// Possible connection statuses.
const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusClosed
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Defaults applied by New.
const (
	defaultName             = "geobus"
	defaultTimeout          = 5 * time.Second
	defaultDrainTimeout     = 30 * time.Second
	defaultReconnectWait    = 2 * time.Second
	defaultPingInterval     = 30 * time.Second
	defaultHealthInterval   = 10 * time.Second
	defaultCircuitThreshold = 5
	initialBackoff          = time.Second
	defaultMaxBackoff       = time.Minute
)

// Client is a handle on the geometry bus: a JetStream connection with a
// circuit breaker on connection failures, retrying publishes on
// connection loss, and durable pull subscriptions. One Client is safe for
// concurrent use by any number of goroutines.
//
// Lifecycle is explicit: New configures, Connect dials, Close drains.
// A closed Client cannot be reused.
type Client struct {
	url  string
	name string

	mu       sync.RWMutex
	conn     *nats.Conn
	js       jetstream.JetStream
	closedCh chan struct{}

	connectMu sync.Mutex
	closeMu   sync.Mutex
	closed    atomic.Bool
	status    atomic.Value // Status

	// Circuit breaker state. The breaker guards Connect: after
	// circuitThreshold consecutive failures it fails fast until the
	// current backoff window elapses, doubling the window each time it
	// opens, capped at maxBackoff.
	circuitFailures  atomic.Int32
	circuitOpen      atomic.Bool
	backoff          atomic.Value // time.Duration
	circuitThreshold int32
	maxBackoff       time.Duration

	timeout       time.Duration
	drainTimeout  time.Duration
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	publishRetry  retry.Config

	credsFile string
	token     string
	tlsConfig *tls.Config
	jsDomain  string

	healthInterval time.Duration
	healthMu       sync.Mutex
	healthDone     chan struct{}
	healthy        atomic.Bool

	onHealthChange func(bool)
	onDisconnect   func(error)
	onReconnect    func()

	logger  Logger
	metrics *metric.Metrics
}

// New builds an unconnected Client. Call Connect before publishing or
// pulling messages.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		url:              nats.DefaultURL,
		name:             defaultName,
		timeout:          defaultTimeout,
		drainTimeout:     defaultDrainTimeout,
		maxReconnects:    -1,
		reconnectWait:    defaultReconnectWait,
		pingInterval:     defaultPingInterval,
		circuitThreshold: defaultCircuitThreshold,
		maxBackoff:       defaultMaxBackoff,
		publishRetry:     errors.DefaultRetryConfig().ToRetryConfig(),
		healthInterval:   defaultHealthInterval,
		logger:           defaultLogger(),
	}
	c.status.Store(StatusDisconnected)
	c.backoff.Store(initialBackoff)

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// URL returns the configured server URL.
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	return c.status.Load().(Status)
}

func (c *Client) setStatus(status Status) {
	c.status.Store(status)
	if c.metrics != nil {
		c.metrics.RecordBusStatus(status == StatusConnected)
	}
}

// IsHealthy reports whether the client holds a live connection.
func (c *Client) IsHealthy() bool {
	if c.Status() != StatusConnected {
		return false
	}
	conn := c.connection()
	return conn != nil && conn.IsConnected()
}

// Failures returns the consecutive connection failure count.
func (c *Client) Failures() int32 {
	return c.circuitFailures.Load()
}

// Backoff returns the wait the circuit breaker will impose the next time
// it opens.
func (c *Client) Backoff() time.Duration {
	return c.backoff.Load().(time.Duration)
}

// Connect dials the server and establishes the JetStream context. It
// fails fast with errors.ErrCircuitOpen while the breaker is open, and
// with errors.ErrClosed after Close.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.ErrClosed
	}
	if c.circuitOpen.Load() {
		return errors.ErrCircuitOpen
	}

	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.Status() == StatusConnected {
		return nil
	}
	c.setStatus(StatusConnecting)

	c.mu.Lock()
	c.closedCh = make(chan struct{})
	c.mu.Unlock()

	type dialResult struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.connectOptions()...)
		done <- dialResult{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		// The dial keeps running; discard whatever it produces.
		go func() {
			if res := <-done; res.conn != nil {
				res.conn.Close()
			}
		}()
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(ctx.Err(), "bus", "Connect", "wait for connection")
	case res := <-done:
		if res.err != nil {
			c.recordFailure()
			c.setStatus(StatusDisconnected)
			return errors.WrapTransient(
				fmt.Errorf("%w: %v", errors.ErrNoConnection, res.err),
				"bus", "Connect", "dial")
		}
		var js jetstream.JetStream
		var err error
		if c.jsDomain != "" {
			js, err = jetstream.NewWithDomain(res.conn, c.jsDomain)
		} else {
			js, err = jetstream.New(res.conn)
		}
		if err != nil {
			res.conn.Close()
			c.recordFailure()
			c.setStatus(StatusDisconnected)
			return errors.WrapFatal(err, "bus", "Connect", "jetstream context")
		}

		c.mu.Lock()
		c.conn = res.conn
		c.js = js
		c.mu.Unlock()

		c.setStatus(StatusConnected)
		c.resetCircuit()
		c.healthy.Store(true)
		c.startHealthMonitor()
		c.logger.Printf("connected to %s", res.conn.ConnectedUrl())
		return nil
	}
}

// WaitForConnection blocks until the client reports StatusConnected or
// the context expires.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.Status() == StatusConnected {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapTransient(
				fmt.Errorf("connection wait timeout in status %s: %w", c.Status(), ctx.Err()),
				"bus", "WaitForConnection", "status poll")
		case <-ticker.C:
		}
	}
}

// Close drains the connection and releases the client. It is idempotent;
// calling Close on a never-connected client succeeds. Durable consumer
// cursors live on the server and survive Close.
func (c *Client) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.stopHealthMonitor()

	c.mu.Lock()
	conn := c.conn
	closedCh := c.closedCh
	c.conn = nil
	c.js = nil
	c.mu.Unlock()

	c.setStatus(StatusClosed)
	if conn == nil || conn.IsClosed() {
		return nil
	}

	if err := conn.Drain(); err != nil {
		conn.Close()
		return errors.Wrap(err, "bus", "Close", "drain")
	}
	select {
	case <-closedCh:
	case <-time.After(c.drainTimeout):
		c.logger.Errorf("drain did not finish within %s, forcing close", c.drainTimeout)
		conn.Close()
	}
	return nil
}

// JetStream exposes the underlying JetStream context for components that
// manage their own streams or object stores over the shared connection.
func (c *Client) JetStream() (jetstream.JetStream, error) {
	return c.jetStream()
}

// RTT measures the round trip to the connected server.
func (c *Client) RTT() (time.Duration, error) {
	conn := c.connection()
	if conn == nil || !conn.IsConnected() {
		return 0, errors.ErrNoConnection
	}
	return conn.RTT()
}

// Publish sends data to a literal subject through JetStream and waits for
// the stream acknowledgment, giving at-least-once delivery. The caller's
// context bounds the wait; without a deadline the client's timeout
// applies.
//
// Failure policy: an acknowledgment timeout returns immediately wrapping
// errors.ErrPublishTimeout and is never retried here, because the server
// may have stored the message and a blind retry could duplicate it — the
// caller owns that decision. Connection-lost failures are retried with
// capped exponential backoff; once attempts are exhausted the error is
// terminal and wraps errors.ErrUnavailable.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if c.closed.Load() {
		return errors.ErrClosed
	}
	if !ValidSubject(subject) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q", nats.ErrBadSubject, subject),
			"bus", "Publish", "subject check")
	}
	js, err := c.jetStream()
	if err != nil {
		return err
	}

	attempts := 0
	pubErr := retry.Do(ctx, c.publishRetry, func(ctx context.Context) error {
		attempts++
		return c.classifyPublish(c.publishOnce(ctx, js, subject, data), subject, attempts)
	})
	if pubErr == nil {
		if attempts > 1 {
			c.logger.Debugf("publish to %s succeeded on attempt %d", subject, attempts)
		}
		if c.metrics != nil {
			c.metrics.RecordPacketPublished("bus", subject)
		}
		return nil
	}

	var nre *retry.NonRetryableError
	if stderrors.As(pubErr, &nre) {
		return nre.Err
	}
	if stderrors.Is(pubErr, context.Canceled) || stderrors.Is(pubErr, context.DeadlineExceeded) {
		// The caller's context ended between attempts.
		return errors.WrapTransient(pubErr, "bus", "Publish", "publish to "+subject)
	}

	// Every attempt hit a connection-lost class failure.
	c.logger.Errorf("publish to %s abandoned after %d attempts: %v", subject, attempts, pubErr)
	if c.metrics != nil {
		c.metrics.RecordError("bus", "publish_unavailable")
	}
	return errors.WrapFatal(
		fmt.Errorf("%w: %v", errors.ErrUnavailable, pubErr),
		"bus", "Publish", "publish to "+subject)
}

func (c *Client) publishOnce(ctx context.Context, js jetstream.JetStream, subject string, data []byte) error {
	if conn := c.connection(); conn == nil || !conn.IsConnected() {
		return errors.ErrConnectionLost
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	_, err := js.Publish(ctx, subject, data)
	return err
}

// classifyPublish sorts a publish failure into the retry policy: nil and
// non-retryable failures pass through retry.Do untouched, connection-lost
// failures come back bare so retry.Do backs off and tries again.
func (c *Client) classifyPublish(err error, subject string, attempt int) error {
	if err == nil {
		return nil
	}
	switch {
	case stderrors.Is(err, nats.ErrTimeout) || stderrors.Is(err, context.DeadlineExceeded):
		if c.metrics != nil {
			c.metrics.RecordError("bus", "publish_timeout")
		}
		return retry.NonRetryable(errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrPublishTimeout, err),
			"bus", "Publish", "await ack for "+subject))
	case stderrors.Is(err, jetstream.ErrNoStreamResponse):
		return retry.NonRetryable(errors.WrapInvalid(
			fmt.Errorf("%w: no stream bound to %q", errors.ErrStreamNotFound, subject),
			"bus", "Publish", "stream lookup"))
	case isConnectionLost(err):
		c.logger.Debugf("publish to %s attempt %d: %v, retrying", subject, attempt, err)
		return fmt.Errorf("%w: %v", errors.ErrConnectionLost, err)
	default:
		return retry.NonRetryable(errors.WrapTransient(err, "bus", "Publish", "publish to "+subject))
	}
}

// isConnectionLost reports whether err means the connection dropped and a
// retry may succeed once reconnection completes.
func isConnectionLost(err error) bool {
	return stderrors.Is(err, errors.ErrConnectionLost) ||
		stderrors.Is(err, nats.ErrConnectionClosed) ||
		stderrors.Is(err, nats.ErrConnectionDraining) ||
		stderrors.Is(err, nats.ErrConnectionReconnecting) ||
		stderrors.Is(err, nats.ErrNoServers) ||
		stderrors.Is(err, nats.ErrReconnectBufExceeded)
}

func (c *Client) connection() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) jetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, errors.ErrNoConnection
	}
	return c.js, nil
}

// recordFailure counts a connection failure and opens the circuit breaker
// at the threshold. The breaker closes again after the current backoff
// window, which doubles on every open up to maxBackoff.
func (c *Client) recordFailure() {
	failures := c.circuitFailures.Add(1)
	if failures < c.circuitThreshold {
		return
	}
	if !c.circuitOpen.CompareAndSwap(false, true) {
		return
	}
	window := c.backoff.Load().(time.Duration)
	c.logger.Errorf("circuit opened after %d connection failures, next attempt in %s", failures, window)
	if c.metrics != nil {
		c.metrics.RecordCircuitBreakerState(1)
	}

	next := window * 2
	if next > c.maxBackoff {
		next = c.maxBackoff
	}
	c.backoff.Store(next)

	time.AfterFunc(window, c.allowRetry)
}

// allowRetry half-opens the circuit so the next Connect attempt goes
// through. Failure counts persist until a connect succeeds.
func (c *Client) allowRetry() {
	if c.closed.Load() {
		return
	}
	c.circuitOpen.Store(false)
	if c.metrics != nil {
		c.metrics.RecordCircuitBreakerState(2)
	}
	c.logger.Printf("circuit half-open, connect attempts allowed")
}

func (c *Client) resetCircuit() {
	c.circuitFailures.Store(0)
	c.circuitOpen.Store(false)
	c.backoff.Store(initialBackoff)
	if c.metrics != nil {
		c.metrics.RecordCircuitBreakerState(0)
	}
}

func (c *Client) connectOptions() []nats.Option {
	opts := []nats.Option{
		nats.Name(c.name),
		nats.Timeout(c.timeout),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleAsyncError),
	}
	if c.credsFile != "" {
		opts = append(opts, nats.UserCredentials(c.credsFile))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.tlsConfig != nil {
		opts = append(opts, nats.Secure(c.tlsConfig))
	}
	return opts
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusConnecting)
	if err != nil {
		c.logger.Errorf("disconnected: %v", err)
	} else {
		c.logger.Printf("disconnected")
	}
	if c.onDisconnect != nil {
		go c.onDisconnect(err)
	}
}

func (c *Client) handleReconnect(conn *nats.Conn) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.logger.Printf("reconnected to %s", conn.ConnectedUrl())
	if c.metrics != nil {
		c.metrics.RecordBusReconnect()
	}
	if c.onReconnect != nil {
		go c.onReconnect()
	}
}

// handleClosed fires once, when the connection is permanently gone:
// either Close drained it or reconnection attempts ran out.
func (c *Client) handleClosed(_ *nats.Conn) {
	c.mu.Lock()
	ch := c.closedCh
	c.closedCh = nil
	c.mu.Unlock()
	if ch != nil {
		close(ch)
	}

	if c.closed.Load() {
		c.setStatus(StatusClosed)
		return
	}
	c.setStatus(StatusDisconnected)
	c.logger.Errorf("connection closed, reconnect attempts exhausted")
}

func (c *Client) handleAsyncError(_ *nats.Conn, sub *nats.Subscription, err error) {
	if sub != nil {
		c.logger.Errorf("async error on %s: %v", sub.Subject, err)
		return
	}
	c.logger.Errorf("async error: %v", err)
}

func (c *Client) startHealthMonitor() {
	if c.healthInterval <= 0 {
		return
	}
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	if c.healthDone != nil {
		return
	}
	c.healthDone = make(chan struct{})
	go c.monitorHealth(c.healthDone)
}

func (c *Client) stopHealthMonitor() {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	if c.healthDone != nil {
		close(c.healthDone)
		c.healthDone = nil
	}
}

// monitorHealth probes connection RTT on a fixed cadence and reports
// transitions through the logger, metrics and the optional callback.
func (c *Client) monitorHealth(done <-chan struct{}) {
	ticker := time.NewTicker(c.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			healthy := false
			if conn := c.connection(); conn != nil && conn.IsConnected() {
				rtt, err := conn.RTT()
				if err == nil {
					healthy = true
					if c.metrics != nil {
						c.metrics.RecordBusRTT(rtt)
					}
				}
			}
			if c.healthy.Swap(healthy) != healthy {
				if healthy {
					c.logger.Printf("connection healthy")
				} else {
					c.logger.Errorf("connection unhealthy")
				}
				if c.onHealthChange != nil {
					go c.onHealthChange(healthy)
				}
			}
		}
	}
}
