package consumer

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tokenism/geobus/bus"
	"github.com/tokenism/geobus/codec"
	"github.com/tokenism/geobus/config"
	"github.com/tokenism/geobus/errors"
	"github.com/tokenism/geobus/health"
	"github.com/tokenism/geobus/manifold"
	"github.com/tokenism/geobus/metric"
	"github.com/tokenism/geobus/pkg/cache"
	"github.com/tokenism/geobus/pkg/retry"
	"github.com/tokenism/geobus/pkg/worker"
)

// pendingInterval is how often the server-side backlog is sampled.
const pendingInterval = 3 * time.Second

// Archiver stores processed packets keyed by their content.
// *geomstore.Store satisfies it.
type Archiver interface {
	Archive(ctx context.Context, p codec.Packet, wire []byte) (string, error)
}

// Deps holds the runtime dependencies for a Consumer.
type Deps struct {
	// Config tunes the subscription, worker pool and dedupe window.
	Config config.ConsumerConfig

	// Manifold sets the classification cut points. The zero value
	// selects the default thresholds.
	Manifold manifold.Thresholds

	// Client is the bus connection deliveries are pulled through.
	Client *bus.Client

	// Archive receives every processed packet when Config.Archive is
	// set. Required in that case, ignored otherwise.
	Archive Archiver

	// Registry enables Prometheus instrumentation. Optional.
	Registry *metric.Registry

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Consumer is the tap service: it pulls deliveries from a durable
// subscription, fans them out over a bounded worker pool, and settles each
// one explicitly. Decoded packets run through the manifold detector, a
// TTL dedupe window on the packet hash, and optionally the archive.
//
// A Consumer is single-use: once stopped it cannot be restarted. The
// durable cursor survives on the server, so a new Consumer on the same
// pattern resumes where this one left off.
type Consumer struct {
	cfg        config.ConsumerConfig
	client     *bus.Client
	archive    Archiver
	thresholds manifold.Thresholds
	pool       *worker.Pool[bus.Delivery]
	dedupe     cache.Cache[string]
	logger     *slog.Logger
	metrics    *consumerMetrics
	durable    string

	sub     *bus.Subscription
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	exitErr error // written before done closes

	received   atomic.Int64
	acked      atomic.Int64
	duplicates atomic.Int64
	terminated atomic.Int64
	nakked     atomic.Int64
	archived   atomic.Int64
	pending    atomic.Uint64
}

// Stats is a point-in-time snapshot of consumer counters.
type Stats struct {
	// Received counts deliveries pulled from the stream.
	Received int64

	// Acked counts packets fully processed and acknowledged.
	Acked int64

	// Duplicates counts packets acknowledged by the dedupe window.
	Duplicates int64

	// Terminated counts undecodable packets dropped permanently.
	Terminated int64

	// Nakked counts deliveries pushed back for redelivery.
	Nakked int64

	// Archived counts packets written to the object store.
	Archived int64

	// Pending is the last sampled server-side backlog.
	Pending uint64

	// QueueDepth is the current worker queue occupancy.
	QueueDepth int
}

// New validates the configuration and assembles a stopped consumer.
func New(deps Deps) (*Consumer, error) {
	cfg := deps.Config
	if deps.Client == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: bus client", errors.ErrMissingConfig),
			"consumer", "New", "dependency check")
	}
	if !bus.ValidPattern(cfg.Pattern) {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: pattern %q", errors.ErrInvalidConfig, cfg.Pattern),
			"consumer", "New", "pattern check")
	}
	if cfg.Workers < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: workers must be at least 1, got %d", errors.ErrInvalidConfig, cfg.Workers),
			"consumer", "New", "workers check")
	}
	if cfg.QueueSize < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: queue_size must be at least 1, got %d", errors.ErrInvalidConfig, cfg.QueueSize),
			"consumer", "New", "queue check")
	}
	if cfg.DedupeTTL < 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: dedupe_ttl must not be negative, got %v", errors.ErrInvalidConfig, cfg.DedupeTTL),
			"consumer", "New", "dedupe check")
	}
	if cfg.Archive && deps.Archive == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: archive store", errors.ErrMissingConfig),
			"consumer", "New", "dependency check")
	}

	thresholds := deps.Manifold
	if thresholds == (manifold.Thresholds{}) {
		thresholds = manifold.DefaultThresholds()
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	durable := bus.DurableName(cfg.Pattern)

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "consumer", "durable", durable)

	metrics, err := newConsumerMetrics(deps.Registry, durable)
	if err != nil {
		return nil, errors.WrapFatal(err, "consumer", "New", "register metrics")
	}

	c := &Consumer{
		cfg:        cfg,
		client:     deps.Client,
		archive:    deps.Archive,
		thresholds: thresholds,
		logger:     logger,
		metrics:    metrics,
		durable:    durable,
	}

	poolOpts := []worker.Option[bus.Delivery]{}
	if deps.Registry != nil {
		poolOpts = append(poolOpts,
			worker.WithMetricsRegistry[bus.Delivery](deps.Registry, poolPrefix(durable)))
	}
	c.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, c.process, poolOpts...)

	if ttl := cfg.DedupeTTL.Std(); ttl > 0 {
		cleanup := ttl / 4
		if cleanup < time.Second {
			cleanup = time.Second
		}
		var copts []cache.Option[string]
		if deps.Registry != nil {
			copts = append(copts, cache.WithMetrics[string](deps.Registry, "consumer_"+durable))
		}
		dedupe, err := cache.NewTTL[string](context.Background(), ttl, cleanup, copts...)
		if err != nil {
			return nil, errors.WrapFatal(err, "consumer", "New", "create dedupe cache")
		}
		c.dedupe = dedupe
	}

	return c, nil
}

// Start binds the durable subscription and launches the pull and backlog
// loops. The consumer runs until ctx is canceled or Stop is called.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "consumer", "Start", "start guard")
	}

	c.metrics.setStatus(metric.ServiceStarting)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	sub, err := c.client.Subscribe(runCtx, c.cfg.Pattern, c.subscribeOptions()...)
	if err != nil {
		cancel()
		c.running.Store(false)
		c.metrics.setStatus(metric.ServiceFailed)
		return err
	}
	c.sub = sub

	if err := c.pool.Start(runCtx); err != nil {
		_ = sub.Close()
		cancel()
		c.running.Store(false)
		c.metrics.setStatus(metric.ServiceFailed)
		return errors.WrapFatal(err, "consumer", "Start", "start worker pool")
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return c.pullLoop(groupCtx) })
	group.Go(func() error { return c.pendingLoop(groupCtx) })

	go func() {
		err := group.Wait()
		if err != nil && !isCancellation(err) {
			c.logger.Error("consumer loops exited", "error", err)
			c.metrics.setStatus(metric.ServiceFailed)
		}
		c.exitErr = err
		close(c.done)
	}()

	c.metrics.setStatus(metric.ServiceRunning)
	c.logger.Info("consumer started",
		"pattern", c.cfg.Pattern,
		"workers", c.cfg.Workers,
		"queue_size", c.cfg.QueueSize,
		"dedupe_ttl", c.cfg.DedupeTTL.Std(),
		"archive", c.cfg.Archive)
	return nil
}

// Stop closes the subscription, cancels the loops and drains the worker
// pool, waiting up to timeout. Unsettled deliveries redeliver to the next
// consumer binding the same durable.
func (c *Consumer) Stop(timeout time.Duration) error {
	if !c.running.CompareAndSwap(true, false) {
		return errors.WrapInvalid(errors.ErrNotStarted, "consumer", "Stop", "stop guard")
	}

	c.metrics.setStatus(metric.ServiceStopping)
	_ = c.sub.Close()
	c.cancel()

	select {
	case <-c.done:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("stop timed out after %v", timeout),
			"consumer", "Stop", "loop drain")
	}

	if err := c.pool.Stop(timeout); err != nil {
		return errors.WrapTransient(err, "consumer", "Stop", "worker drain")
	}
	if c.dedupe != nil {
		_ = c.dedupe.Close()
	}
	c.metrics.setStatus(metric.ServiceStopped)

	stats := c.Stats()
	c.logger.Info("consumer stopped",
		"received", stats.Received,
		"acked", stats.Acked,
		"duplicates", stats.Duplicates,
		"terminated", stats.Terminated,
		"nakked", stats.Nakked,
		"archived", stats.Archived)

	if c.exitErr != nil && !isCancellation(c.exitErr) {
		return c.exitErr
	}
	return nil
}

// Running reports whether the loops are live.
func (c *Consumer) Running() bool {
	return c.running.Load()
}

// Durable returns the durable consumer name carrying the cursor.
func (c *Consumer) Durable() string {
	return c.durable
}

// Stats returns a snapshot of the consumer counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Received:   c.received.Load(),
		Acked:      c.acked.Load(),
		Duplicates: c.duplicates.Load(),
		Terminated: c.terminated.Load(),
		Nakked:     c.nakked.Load(),
		Archived:   c.archived.Load(),
		Pending:    c.pending.Load(),
		QueueDepth: c.pool.Stats().QueueDepth,
	}
}

// Health reports consumer liveness and bus connectivity.
func (c *Consumer) Health() health.Status {
	if !c.running.Load() {
		return health.NewUnhealthy("consumer", "not running")
	}
	if !c.client.IsHealthy() {
		return health.NewDegraded("consumer", "bus connection unhealthy")
	}
	return health.NewHealthy("consumer",
		fmt.Sprintf("%d workers on %s", c.cfg.Workers, c.cfg.Pattern))
}

// subscribeOptions maps the configuration onto subscription options,
// leaving transport defaults in place for unset fields.
func (c *Consumer) subscribeOptions() []bus.SubscribeOption {
	opts := []bus.SubscribeOption{bus.WithDurable(c.durable)}
	if wait := c.cfg.AckWait.Std(); wait > 0 {
		opts = append(opts, bus.WithAckWait(wait))
	}
	if c.cfg.MaxDeliver > 0 {
		opts = append(opts, bus.WithMaxDeliver(c.cfg.MaxDeliver))
	}
	return opts
}

// pullLoop pulls deliveries and submits them to the worker pool. Pull
// errors back off persistently before declaring the service failed; a full
// queue naks the delivery back to the server after a short submit backoff,
// so backlog accumulates in the stream rather than in process memory.
func (c *Consumer) pullLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		d, err := retry.DoWithResult(ctx, retry.Persistent(),
			func(ctx context.Context) (bus.Delivery, error) {
				d, err := c.sub.Next(ctx)
				if err != nil && stderrors.Is(err, errors.ErrClosed) {
					return d, retry.NonRetryable(err)
				}
				return d, err
			})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if stderrors.Is(err, errors.ErrClosed) {
				return nil
			}
			return err
		}
		c.received.Add(1)

		err = retry.Do(ctx, retry.Quick(), func(context.Context) error {
			return c.pool.Submit(d)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.nakked.Add(1)
			c.metrics.recordError("queue_full")
			c.logger.Warn("worker queue full, delivery nakked",
				"subject", d.Subject(), "queue_depth", c.pool.Stats().QueueDepth)
			if nakErr := d.Nak(); nakErr != nil {
				c.logger.Warn("nak failed after submit rejection",
					"subject", d.Subject(), "error", nakErr)
			}
		}
	}
}

// pendingLoop samples the server-side backlog for the pending gauge.
func (c *Consumer) pendingLoop(ctx context.Context) error {
	tick := time.NewTicker(pendingInterval)
	defer tick.Stop()

	for {
		n, err := c.sub.Pending(ctx)
		switch {
		case err == nil:
			c.pending.Store(n)
			c.metrics.setPending(n)
		case ctx.Err() != nil:
			return ctx.Err()
		case stderrors.Is(err, errors.ErrClosed):
			return nil
		default:
			c.logger.Debug("backlog lookup failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

func isCancellation(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// poolPrefix renders the durable name as a metric-name-safe prefix for the
// worker pool, whose collectors embed it in the metric name itself.
func poolPrefix(durable string) string {
	return "consumer_" + strings.ReplaceAll(durable, "-", "_")
}
