package producer

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tokenism/geobus/bus"
	"github.com/tokenism/geobus/codec"
	"github.com/tokenism/geobus/config"
	"github.com/tokenism/geobus/errors"
	"github.com/tokenism/geobus/health"
	"github.com/tokenism/geobus/metric"
	"github.com/tokenism/geobus/pkg/buffer"
	"github.com/tokenism/geobus/spectral"
)

// DefaultNamespace is the leading subject token simulated packets are
// published under.
const DefaultNamespace = "geometry"

// subjectDomain is the second subject token for simulated workloads.
const subjectDomain = "sim"

const (
	// publishBatch caps how many staged packets one drain pass publishes.
	publishBatch = 64

	// drainInterval is how long the publish loop sleeps on an empty buffer.
	drainInterval = 25 * time.Millisecond
)

// staged is one encoded packet waiting in the publish buffer.
type staged struct {
	subject string
	kind    codec.Kind
	wire    []byte
}

// Deps holds the runtime dependencies for a Producer.
type Deps struct {
	// Config tunes workload, rate and buffering.
	Config config.ProducerConfig

	// Spectral parameterizes the pre-filter when Config.Filter is set.
	// The zero value selects the filter defaults.
	Spectral config.SpectralConfig

	// Precision selects the wire quantization. Empty means double.
	Precision codec.Precision

	// Namespace overrides the leading subject token. Empty means
	// DefaultNamespace.
	Namespace string

	// Client is the bus connection packets are published through.
	Client *bus.Client

	// Registry enables Prometheus instrumentation. Optional.
	Registry *metric.Registry

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Producer generates synthetic geometry workloads and publishes them at
// a configured rate. Generation is admitted through a token bucket and
// staged in a bounded buffer, so publish stalls cost the oldest staged
// packets instead of memory.
type Producer struct {
	cfg      config.ProducerConfig
	client   *bus.Client
	gen      *generator
	buf      buffer.Buffer[staged]
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *producerMetrics
	encode   codec.Options
	subjects map[codec.Kind]string

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	exitErr error // written before done closes

	generated atomic.Int64
	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// Stats is a point-in-time snapshot of producer counters.
type Stats struct {
	// Generated counts packets staged for publishing.
	Generated int64

	// Published counts packets acknowledged by the bus.
	Published int64

	// Dropped counts staged packets evicted by buffer overflow.
	Dropped int64

	// Failed counts packets dropped after a failed publish.
	Failed int64

	// Buffered is the current staging buffer occupancy.
	Buffered int
}

// New validates the configuration and assembles a stopped producer.
func New(deps Deps) (*Producer, error) {
	cfg := deps.Config
	if deps.Client == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: bus client", errors.ErrMissingConfig),
			"producer", "New", "dependency check")
	}
	if cfg.Rate <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: rate must be positive, got %g", errors.ErrInvalidConfig, cfg.Rate),
			"producer", "New", "rate check")
	}
	if cfg.Burst < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: burst must be at least 1, got %d", errors.ErrInvalidConfig, cfg.Burst),
			"producer", "New", "burst check")
	}
	if cfg.BufferSize < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: buffer_size must be at least 1, got %d", errors.ErrInvalidConfig, cfg.BufferSize),
			"producer", "New", "buffer check")
	}

	var filter *spectral.Filter
	if cfg.Filter {
		opts := deps.Spectral.ToOptions()
		if deps.Spectral == (config.SpectralConfig{}) {
			opts = spectral.DefaultOptions()
		}
		var err error
		filter, err = spectral.New(opts)
		if err != nil {
			return nil, err
		}
	}

	gen, err := newGenerator(cfg, filter)
	if err != nil {
		return nil, err
	}

	namespace := deps.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	subjects, err := subjectMap(namespace)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "producer", "source", cfg.Source)

	metrics, err := newProducerMetrics(deps.Registry, cfg.Source)
	if err != nil {
		return nil, errors.WrapFatal(err, "producer", "New", "register metrics")
	}

	p := &Producer{
		cfg:      cfg,
		client:   deps.Client,
		gen:      gen,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		logger:   logger,
		metrics:  metrics,
		encode:   codec.Options{Precision: deps.Precision},
		subjects: subjects,
	}

	bufOpts := []buffer.Option[staged]{
		buffer.WithOverflowPolicy[staged](buffer.DropOldest),
		buffer.WithDropCallback[staged](p.onOverflow),
	}
	if deps.Registry != nil {
		bufOpts = append(bufOpts, buffer.WithMetrics[staged](deps.Registry, "producer_"+cfg.Source))
	}
	buf, err := buffer.NewCircularBuffer(cfg.BufferSize, bufOpts...)
	if err != nil {
		return nil, errors.WrapFatal(err, "producer", "New", "create staging buffer")
	}
	p.buf = buf

	return p, nil
}

// Start launches the generate and publish loops. The producer runs until
// ctx is canceled or Stop is called.
func (p *Producer) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "producer", "Start", "start guard")
	}

	p.metrics.setStatus(metric.ServiceStarting)

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return p.generateLoop(groupCtx) })
	group.Go(func() error { return p.publishLoop(groupCtx) })

	go func() {
		err := group.Wait()
		if err != nil && !isCancellation(err) {
			p.logger.Error("producer loops exited", "error", err)
			p.metrics.setStatus(metric.ServiceFailed)
		}
		p.exitErr = err
		close(p.done)
	}()

	p.metrics.setStatus(metric.ServiceRunning)
	p.logger.Info("producer started",
		"workload", p.cfg.Workload,
		"rate", p.cfg.Rate,
		"burst", p.cfg.Burst,
		"buffer_size", p.cfg.BufferSize,
		"filter", p.cfg.Filter)
	return nil
}

// Stop cancels the loops and waits up to timeout for them to drain.
func (p *Producer) Stop(timeout time.Duration) error {
	if !p.running.CompareAndSwap(true, false) {
		return errors.WrapInvalid(errors.ErrNotStarted, "producer", "Stop", "stop guard")
	}

	p.metrics.setStatus(metric.ServiceStopping)
	p.cancel()

	select {
	case <-p.done:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("stop timed out after %v", timeout),
			"producer", "Stop", "loop drain")
	}

	_ = p.buf.Close()
	p.metrics.setStatus(metric.ServiceStopped)

	stats := p.Stats()
	p.logger.Info("producer stopped",
		"generated", stats.Generated,
		"published", stats.Published,
		"dropped", stats.Dropped,
		"failed", stats.Failed)

	if p.exitErr != nil && !isCancellation(p.exitErr) {
		return p.exitErr
	}
	return nil
}

// Running reports whether the loops are live.
func (p *Producer) Running() bool {
	return p.running.Load()
}

// Stats returns a snapshot of the producer counters.
func (p *Producer) Stats() Stats {
	return Stats{
		Generated: p.generated.Load(),
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
		Buffered:  p.buf.Size(),
	}
}

// Health reports producer liveness and bus connectivity.
func (p *Producer) Health() health.Status {
	if !p.running.Load() {
		return health.NewUnhealthy("producer", "not running")
	}
	if !p.client.IsHealthy() {
		return health.NewDegraded("producer", "bus connection unhealthy")
	}
	return health.NewHealthy("producer",
		fmt.Sprintf("%s workload at %g packets/s", p.cfg.Workload, p.cfg.Rate))
}

// Subjects returns the routing key for each packet kind this producer
// publishes.
func (p *Producer) Subjects() map[codec.Kind]string {
	out := make(map[codec.Kind]string, len(p.subjects))
	for kind, subject := range p.subjects {
		out[kind] = subject
	}
	return out
}

// generateLoop draws packets at the admission rate and stages the
// encoded documents for publishing.
func (p *Producer) generateLoop(ctx context.Context) error {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		start := time.Now()
		pkt, err := p.gen.Generate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.metrics.recordError("generate")
			p.logger.Error("workload generation failed",
				"workload", p.cfg.Workload, "error", err)
			continue
		}
		pkt.Metadata["packet_id"] = uuid.NewString()

		wire, err := codec.Encode(pkt, p.encode)
		if err != nil {
			p.metrics.recordError("encode")
			p.logger.Error("packet encode failed",
				"kind", string(pkt.Kind), "version", pkt.Version, "error", err)
			continue
		}
		p.metrics.observeEncode(time.Since(start))

		item := staged{subject: p.subjects[pkt.Kind], kind: pkt.Kind, wire: wire}
		if err := p.buf.Write(item); err != nil {
			// Buffer closed, shutting down.
			return nil
		}
		p.generated.Add(1)
		p.metrics.recordGenerated(string(pkt.Kind))
	}
}

// publishLoop drains staged packets and publishes them. A failed publish
// drops that packet and the loop moves on; a bad packet never halts
// production.
func (p *Producer) publishLoop(ctx context.Context) error {
	idle := time.NewTicker(drainInterval)
	defer idle.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := p.buf.ReadBatch(publishBatch)
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-idle.C:
			}
			continue
		}

		for _, item := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			if err := p.client.Publish(ctx, item.subject, item.wire); err != nil {
				p.failed.Add(1)
				p.metrics.recordPublishDrop()
				p.logger.Error("publish failed, dropping packet",
					"subject", item.subject, "kind", string(item.kind), "error", err)
				continue
			}
			p.published.Add(1)
			p.metrics.recordPublished(item.subject, time.Since(start))
		}
	}
}

// onOverflow counts staged packets evicted by the DropOldest policy when
// publishing cannot keep up.
func (p *Producer) onOverflow(item staged) {
	p.dropped.Add(1)
	p.logger.Debug("staging buffer overflow",
		"subject", item.subject, "kind", string(item.kind))
}

func isCancellation(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// versionTag renders the wire format version as a subject token, "0.2"
// becoming "v0-2", so subscriptions can pin a codec version.
func versionTag() string {
	return "v" + strings.ReplaceAll(codec.Version, ".", "-")
}

// subjectMap precomputes <namespace>.sim.<kind>.<version-tag> for every
// packet kind.
func subjectMap(namespace string) (map[codec.Kind]string, error) {
	tag := versionTag()
	kinds := []codec.Kind{codec.KindHyperbolic, codec.KindDirichlet, codec.KindAttribution}

	subjects := make(map[codec.Kind]string, len(kinds))
	for _, kind := range kinds {
		subject, err := bus.FormatSubject(namespace, subjectDomain, string(kind), tag)
		if err != nil {
			return nil, err
		}
		subjects[kind] = subject
	}
	return subjects, nil
}
