package metric

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func gatheredNames(t *testing.T, registry *Registry) map[string]bool {
	t.Helper()

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(metricFamilies))
	for _, mf := range metricFamilies {
		names[mf.GetName()] = true
	}
	return names
}

func TestRegistry_RegisterCounter(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	err := registry.RegisterCounter("test-service", "test_counter", counter)
	require.NoError(t, err)

	counter.Inc()

	assert.True(t, gatheredNames(t, registry)["test_counter"],
		"counter should be registered in Prometheus registry")
}

func TestRegistry_RegisterGauge(t *testing.T) {
	registry := NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})

	err := registry.RegisterGauge("test-service", "test_gauge", gauge)
	require.NoError(t, err)

	gauge.Set(42.0)

	assert.True(t, gatheredNames(t, registry)["test_gauge"],
		"gauge should be registered in Prometheus registry")
}

func TestRegistry_RegisterHistogramVec(t *testing.T) {
	registry := NewRegistry()

	histogramVec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "A test histogram vector",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	err := registry.RegisterHistogramVec("test-service", "test_duration_seconds", histogramVec)
	require.NoError(t, err)

	histogramVec.WithLabelValues("encode").Observe(0.05)

	assert.True(t, gatheredNames(t, registry)["test_duration_seconds"],
		"histogram vector should be registered in Prometheus registry")
}

func TestRegistry_DuplicateKey(t *testing.T) {
	registry := NewRegistry()

	counter1 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dup_key_counter",
		Help: "First counter",
	})
	counter2 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dup_key_counter_other",
		Help: "Second counter",
	})

	err := registry.RegisterCounter("svc", "shared_name", counter1)
	require.NoError(t, err)

	// Same (service, metric) key is rejected before Prometheus sees it.
	err = registry.RegisterCounter("svc", "shared_name", counter2)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate metric registration")
}

func TestRegistry_PrometheusConflict(t *testing.T) {
	registry := NewRegistry()

	counter1 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conflicting_counter",
		Help: "A counter",
	})
	counter2 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conflicting_counter",
		Help: "A counter",
	})

	err := registry.RegisterCounter("service1", "conflicting_counter", counter1)
	require.NoError(t, err)

	// Different registry key but identical Prometheus identity.
	err = registry.RegisterCounter("service2", "conflicting_counter", counter2)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus conflict")
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unregister_counter",
		Help: "A counter to unregister",
	})

	err := registry.RegisterCounter("test-service", "unregister_counter", counter)
	require.NoError(t, err)
	assert.True(t, gatheredNames(t, registry)["unregister_counter"])

	assert.True(t, registry.Unregister("test-service", "unregister_counter"))
	assert.False(t, gatheredNames(t, registry)["unregister_counter"])

	// Unregistering a metric that was never registered reports false.
	assert.False(t, registry.Unregister("test-service", "never_registered"))
}

func TestRegistry_ThreadSafety(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	numGoroutines := 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", id),
				Help: "A concurrent counter",
			})

			err := registry.RegisterCounter("concurrent-service",
				fmt.Sprintf("concurrent_counter_%d", id), counter)
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	counterCount := 0
	for name := range gatheredNames(t, registry) {
		if strings.HasPrefix(name, "concurrent_counter_") {
			counterCount++
		}
	}

	assert.Equal(t, numGoroutines, counterCount,
		"all concurrent counters should be registered")
}

func TestRegistrar_Interface(t *testing.T) {
	registry := NewRegistry()

	var registrar Registrar = registry
	assert.NotNil(t, registrar)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "interface_counter",
		Help: "Counter registered through interface",
	})

	err := registrar.RegisterCounter("interface-service", "interface_counter", counter)
	require.NoError(t, err)
}

func TestRegistry_CoreMetricsInitialization(t *testing.T) {
	registry := NewRegistry()

	// Vector metrics only appear in Gather() once they carry a value.
	core := registry.CoreMetrics()
	core.RecordServiceStatus("test-service", 2)
	core.RecordPacketReceived("test-service", "hyperbolic")
	core.RecordPacketProcessed("test-service", "hyperbolic", "success")
	core.RecordPacketPublished("test-service", "geo.analysis.hyperbolic.v0-2")
	core.RecordProcessingDuration("test-service", "decode", 100*time.Millisecond)
	core.RecordError("test-service", "decode")
	core.RecordHealthStatus("test-service", true)

	expectedCoreMetrics := []string{
		"geobus_service_status",
		"geobus_packets_received_total",
		"geobus_packets_processed_total",
		"geobus_packets_published_total",
		"geobus_processing_duration_seconds",
		"geobus_errors_total",
		"geobus_health_status",
		"geobus_bus_connected",
		"geobus_bus_rtt_milliseconds",
		"geobus_bus_reconnects_total",
		"geobus_bus_circuit_breaker",
	}

	found := gatheredNames(t, registry)
	for _, name := range expectedCoreMetrics {
		assert.True(t, found[name], "core metric %s should be initialized", name)
	}
}

func TestMetrics_RecordMethods(t *testing.T) {
	registry := NewRegistry()
	core := registry.CoreMetrics()

	core.RecordServiceStatus("test-service", 2)
	core.RecordPacketReceived("test-service", "dirichlet")
	core.RecordPacketProcessed("test-service", "dirichlet", "success")
	core.RecordPacketPublished("test-service", "geo.analysis.dirichlet.v0-2")
	core.RecordProcessingDuration("test-service", "fit", 100*time.Millisecond)
	core.RecordError("test-service", "connection")
	core.RecordHealthStatus("test-service", true)

	core.RecordBusStatus(true)
	core.RecordBusRTT(50 * time.Millisecond)
	core.RecordBusReconnect()
	core.RecordCircuitBreakerState(0)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.Greater(t, len(metricFamilies), 0, "should have recorded metrics")
}
