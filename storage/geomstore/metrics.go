package geomstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tokenism/geobus/metric"
)

// storeMetrics instruments archive operations. All methods are nil-safe so
// stores built without a registry skip instrumentation entirely.
type storeMetrics struct {
	readOps  *prometheus.CounterVec // by operation: get, load
	writeOps *prometheus.CounterVec // by operation: put, archive

	deleteOps prometheus.Counter
	listOps   prometheus.Counter

	readLatency  *prometheus.HistogramVec
	writeLatency *prometheus.HistogramVec

	errors *prometheus.CounterVec // by operation

	objectCount  prometheus.Gauge
	storageBytes prometheus.Gauge
}

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0}

// newStoreMetrics registers the archive metrics for one bucket. A nil
// registry disables metrics.
func newStoreMetrics(registry *metric.Registry, bucket string) (*storeMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	bucketLabel := prometheus.Labels{"bucket": bucket}

	m := &storeMetrics{
		readOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "geobus",
			Subsystem:   "geomstore",
			Name:        "read_operations_total",
			Help:        "Total number of archive read operations",
			ConstLabels: bucketLabel,
		}, []string{"operation"}),

		writeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "geobus",
			Subsystem:   "geomstore",
			Name:        "write_operations_total",
			Help:        "Total number of archive write operations",
			ConstLabels: bucketLabel,
		}, []string{"operation"}),

		deleteOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "geobus",
			Subsystem:   "geomstore",
			Name:        "delete_operations_total",
			Help:        "Total number of archive delete operations",
			ConstLabels: bucketLabel,
		}),

		listOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "geobus",
			Subsystem:   "geomstore",
			Name:        "list_operations_total",
			Help:        "Total number of archive list operations",
			ConstLabels: bucketLabel,
		}),

		readLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "geobus",
			Subsystem:   "geomstore",
			Name:        "read_duration_seconds",
			Help:        "Archive read duration in seconds",
			ConstLabels: bucketLabel,
			Buckets:     latencyBuckets,
		}, []string{"operation"}),

		writeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "geobus",
			Subsystem:   "geomstore",
			Name:        "write_duration_seconds",
			Help:        "Archive write duration in seconds",
			ConstLabels: bucketLabel,
			Buckets:     latencyBuckets,
		}, []string{"operation"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "geobus",
			Subsystem:   "geomstore",
			Name:        "operation_errors_total",
			Help:        "Total number of archive operation errors",
			ConstLabels: bucketLabel,
		}, []string{"operation"}),

		objectCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "geobus",
			Subsystem:   "geomstore",
			Name:        "object_count",
			Help:        "Number of objects in the archive bucket",
			ConstLabels: bucketLabel,
		}),

		storageBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "geobus",
			Subsystem:   "geomstore",
			Name:        "storage_bytes",
			Help:        "Bytes stored in the archive bucket",
			ConstLabels: bucketLabel,
		}),
	}

	prefix := "geomstore_" + bucket
	if err := registry.RegisterCounterVec(prefix, "read_ops", m.readOps); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(prefix, "write_ops", m.writeOps); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "delete_ops", m.deleteOps); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "list_ops", m.listOps); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec(prefix, "read_latency", m.readLatency); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec(prefix, "write_latency", m.writeLatency); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(prefix, "errors", m.errors); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "object_count", m.objectCount); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "storage_bytes", m.storageBytes); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *storeMetrics) observeRead(operation string, elapsed time.Duration) {
	if m != nil {
		m.readOps.WithLabelValues(operation).Inc()
		m.readLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
	}
}

func (m *storeMetrics) observeWrite(operation string, elapsed time.Duration) {
	if m != nil {
		m.writeOps.WithLabelValues(operation).Inc()
		m.writeLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
	}
}

func (m *storeMetrics) recordDelete() {
	if m != nil {
		m.deleteOps.Inc()
	}
}

func (m *storeMetrics) recordList() {
	if m != nil {
		m.listOps.Inc()
	}
}

func (m *storeMetrics) recordError(operation string) {
	if m != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}

func (m *storeMetrics) updateUsage(objects int, bytes uint64) {
	if m != nil {
		m.objectCount.Set(float64(objects))
		m.storageBytes.Set(float64(bytes))
	}
}
