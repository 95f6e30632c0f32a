package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tokenism/geobus/metric"
)

// consumerMetrics layers tap-specific collectors over the shared core
// metrics. All methods are nil-safe so a consumer without a registry runs
// without instrumentation. Queue depth and submit rejections are exported
// by the worker pool itself; dedupe hits by the dedupe cache.
type consumerMetrics struct {
	service string
	core    *metric.Metrics

	classifications *prometheus.CounterVec
	warnings        prometheus.Counter
	pending         prometheus.Gauge
}

// newConsumerMetrics registers the tap collectors, labeled by the durable
// consumer name. A nil registry disables instrumentation.
func newConsumerMetrics(registry *metric.Registry, durable string) (*consumerMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"durable": durable}
	m := &consumerMetrics{
		service: durable,
		core:    registry.CoreMetrics(),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "geobus",
			Subsystem:   "consumer",
			Name:        "classifications_total",
			Help:        "Inspected packets by curvature class",
			ConstLabels: labels,
		}, []string{"class"}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "geobus",
			Subsystem:   "consumer",
			Name:        "inspect_warnings_total",
			Help:        "Inspection findings, such as a declared kind disagreeing with the estimate",
			ConstLabels: labels,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "geobus",
			Subsystem:   "consumer",
			Name:        "pending_messages",
			Help:        "Server-side backlog: delivered-but-unacknowledged plus undelivered messages",
			ConstLabels: labels,
		}),
	}

	name := "consumer_" + durable
	if err := registry.RegisterCounterVec(name, "classifications", m.classifications); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(name, "inspect_warnings", m.warnings); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(name, "pending", m.pending); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *consumerMetrics) recordReceived(kind string) {
	if m == nil {
		return
	}
	m.core.RecordPacketReceived(m.service, kind)
}

func (m *consumerMetrics) recordProcessed(kind, status string) {
	if m == nil {
		return
	}
	m.core.RecordPacketProcessed(m.service, kind, status)
}

func (m *consumerMetrics) recordClass(class string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(class).Inc()
}

func (m *consumerMetrics) recordWarning() {
	if m == nil {
		return
	}
	m.warnings.Inc()
}

func (m *consumerMetrics) setPending(n uint64) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *consumerMetrics) observeHandle(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.core.RecordProcessingDuration(m.service, "handle", elapsed)
}

func (m *consumerMetrics) recordError(stage string) {
	if m == nil {
		return
	}
	m.core.RecordError(m.service, stage)
}

func (m *consumerMetrics) setStatus(status int) {
	if m == nil {
		return
	}
	m.core.RecordServiceStatus(m.service, status)
}
