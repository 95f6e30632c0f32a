// Package metric provides Prometheus-based metrics collection and an HTTP
// server for monitoring geobus services.
//
// The package offers a centralized registry managing both core metrics
// (service status, packet throughput, bus health) and custom service-specific
// collectors, plus an HTTP server exposing everything in Prometheus format.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: process-level metrics registered automatically (Metrics type)
//  2. Service Registry: extensible registration for service-specific metrics (Registrar interface)
//  3. HTTP Server: metrics endpoint with a health check (Server type)
//
// Core metrics cover the concerns every geobus process shares; services such
// as the producer, the consumer and the object store register their own
// collectors on top.
//
// # Basic Usage
//
// Setting up metrics collection and the HTTP server:
//
//	registry := metric.NewRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//
//	core := registry.CoreMetrics()
//	core.RecordServiceStatus("producer", 2) // 2 = running
//	core.RecordPacketPublished("producer", "geo.analysis.hyperbolic.v0-2")
//	core.RecordBusStatus(true)
//
// Metrics are served at http://localhost:9090/metrics and a liveness probe
// at http://localhost:9090/health.
//
// # Service-Specific Metrics
//
// Services register custom collectors through the registry. Registration is
// keyed by (service, metric) so a duplicate is rejected before it reaches
// Prometheus:
//
//	encoded := prometheus.NewCounter(prometheus.CounterOpts{
//	    Namespace: "geobus",
//	    Name:      "trees_encoded_total",
//	    Help:      "Total trees embedded into the Poincare ball",
//	})
//	if err := registry.RegisterCounter("producer", "trees_encoded_total", encoded); err != nil {
//	    return err
//	}
//
// Vector variants (RegisterCounterVec, RegisterGaugeVec, RegisterHistogramVec)
// follow the same pattern for labeled metrics.
//
// # Error Handling
//
// Registration errors are classified: duplicate registration is an invalid
// (caller bug) error, while a Prometheus-internal failure is fatal. Use the
// errors package helpers to distinguish them when registration is dynamic.
package metric
