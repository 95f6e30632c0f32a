package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Service status gauge values recorded by RecordServiceStatus.
const (
	ServiceStopped = iota
	ServiceStarting
	ServiceRunning
	ServiceStopping
	ServiceFailed
)

// Metrics contains the process-level metrics shared by every geobus service.
// Domain-specific collectors (encoder timings, store sizes, queue depths)
// are registered separately through the Registry.
type Metrics struct {
	// Service metrics
	ServiceStatus      *prometheus.GaugeVec
	PacketsReceived    *prometheus.CounterVec
	PacketsProcessed   *prometheus.CounterVec
	PacketsPublished   *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
	HealthCheckStatus  *prometheus.GaugeVec

	// Bus connection metrics
	BusConnected      prometheus.Gauge
	BusRTT            prometheus.Gauge
	BusReconnects     prometheus.Counter
	BusCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a Metrics instance with all shared collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "geobus",
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		PacketsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "geobus",
				Subsystem: "packets",
				Name:      "received_total",
				Help:      "Total number of packets received",
			},
			[]string{"service", "kind"},
		),

		PacketsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "geobus",
				Subsystem: "packets",
				Name:      "processed_total",
				Help:      "Total number of packets processed",
			},
			[]string{"service", "kind", "status"},
		),

		PacketsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "geobus",
				Subsystem: "packets",
				Name:      "published_total",
				Help:      "Total number of packets published",
			},
			[]string{"service", "subject"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "geobus",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Packet processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "geobus",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "geobus",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"service"},
		),

		BusConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "geobus",
				Subsystem: "bus",
				Name:      "connected",
				Help:      "Bus connection status (0=disconnected, 1=connected)",
			},
		),

		BusRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "geobus",
				Subsystem: "bus",
				Name:      "rtt_milliseconds",
				Help:      "Bus round-trip time in milliseconds",
			},
		),

		BusReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "geobus",
				Subsystem: "bus",
				Name:      "reconnects_total",
				Help:      "Total number of bus reconnections",
			},
		),

		BusCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "geobus",
				Subsystem: "bus",
				Name:      "circuit_breaker",
				Help:      "Bus circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// RecordServiceStatus updates the service status gauge.
func (c *Metrics) RecordServiceStatus(service string, status int) {
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordPacketReceived increments the received packet counter.
func (c *Metrics) RecordPacketReceived(service, kind string) {
	c.PacketsReceived.WithLabelValues(service, kind).Inc()
}

// RecordPacketProcessed increments the processed packet counter.
func (c *Metrics) RecordPacketProcessed(service, kind, status string) {
	c.PacketsProcessed.WithLabelValues(service, kind, status).Inc()
}

// RecordPacketPublished increments the published packet counter.
func (c *Metrics) RecordPacketPublished(service, subject string) {
	c.PacketsPublished.WithLabelValues(service, subject).Inc()
}

// RecordProcessingDuration records processing time for one operation.
func (c *Metrics) RecordProcessingDuration(service, operation string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordError increments the error counter.
func (c *Metrics) RecordError(service, errorType string) {
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordHealthStatus updates the health check gauge.
func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(service).Set(value)
}

// RecordBusStatus updates the bus connection gauge.
func (c *Metrics) RecordBusStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.BusConnected.Set(value)
}

// RecordBusRTT updates the measured bus round-trip time.
func (c *Metrics) RecordBusRTT(rtt time.Duration) {
	c.BusRTT.Set(float64(rtt.Milliseconds()))
}

// RecordBusReconnect increments the reconnection counter.
func (c *Metrics) RecordBusReconnect() {
	c.BusReconnects.Inc()
}

// RecordCircuitBreakerState updates the circuit breaker gauge.
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.BusCircuitBreaker.Set(float64(state))
}
