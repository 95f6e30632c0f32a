package producer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tokenism/geobus/metric"
)

// producerMetrics layers producer-specific collectors over the shared
// core metrics. All methods are nil-safe so a producer without a registry
// runs without instrumentation. Buffer occupancy and overflow drops are
// exported by the staging buffer itself.
type producerMetrics struct {
	service string
	core    *metric.Metrics

	generated    *prometheus.CounterVec
	publishDrops prometheus.Counter
	lastPublish  prometheus.Gauge
}

// newProducerMetrics registers the producer collectors, labeled by
// source. A nil registry disables instrumentation.
func newProducerMetrics(registry *metric.Registry, source string) (*producerMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"source": source}
	m := &producerMetrics{
		service: source,
		core:    registry.CoreMetrics(),
		generated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "geobus",
			Subsystem:   "producer",
			Name:        "packets_generated_total",
			Help:        "Workload packets generated, by kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		publishDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "geobus",
			Subsystem:   "producer",
			Name:        "publish_drops_total",
			Help:        "Packets dropped after a failed publish",
			ConstLabels: labels,
		}),
		lastPublish: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "geobus",
			Subsystem:   "producer",
			Name:        "last_publish_timestamp",
			Help:        "Unix timestamp of the last successful publish",
			ConstLabels: labels,
		}),
	}

	name := "producer_" + source
	if err := registry.RegisterCounterVec(name, "packets_generated", m.generated); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(name, "publish_drops", m.publishDrops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(name, "last_publish", m.lastPublish); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *producerMetrics) recordGenerated(kind string) {
	if m == nil {
		return
	}
	m.generated.WithLabelValues(kind).Inc()
}

func (m *producerMetrics) observeEncode(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.core.RecordProcessingDuration(m.service, "encode", elapsed)
}

func (m *producerMetrics) recordPublished(subject string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.core.RecordPacketPublished(m.service, subject)
	m.core.RecordProcessingDuration(m.service, "publish", elapsed)
	m.lastPublish.SetToCurrentTime()
}

func (m *producerMetrics) recordPublishDrop() {
	if m == nil {
		return
	}
	m.publishDrops.Inc()
	m.core.RecordError(m.service, "publish")
}

func (m *producerMetrics) recordError(stage string) {
	if m == nil {
		return
	}
	m.core.RecordError(m.service, stage)
}

func (m *producerMetrics) setStatus(status int) {
	if m == nil {
		return
	}
	m.core.RecordServiceStatus(m.service, status)
}
