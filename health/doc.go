// Package health provides health monitoring for geobus services with
// thread-safe status tracking and aggregation.
//
// The package tracks the health of individual components (bus client, worker
// pool, object store) and aggregates them into a system-wide status the
// service exposes for monitoring and alerting.
//
// # Health States
//
// The package supports three health states:
//   - Healthy: component operating normally
//   - Degraded: component operating with reduced functionality
//   - Unhealthy: component not functioning properly
//
// A degraded worker pool might trigger backpressure handling, while an
// unhealthy bus connection triggers reconnection and, eventually, incident
// response.
//
// # Basic Usage
//
// Creating and tracking component health:
//
//	monitor := health.NewMonitor()
//
//	monitor.UpdateHealthy("bus-client", "connected")
//	monitor.UpdateDegraded("worker-pool", "queue above 80% capacity")
//	monitor.UpdateUnhealthy("geomstore", "bucket missing")
//
//	system := monitor.AggregateHealth("consumer")
//	if system.IsUnhealthy() {
//	    // one or more components are down
//	}
//
// Aggregation rules: any unhealthy sub-component makes the system unhealthy;
// otherwise any degraded sub-component makes it degraded; otherwise healthy.
//
// # Message Sanitization
//
// Status messages built from errors via NewUnhealthyFromError are sanitized
// before use: URLs, file paths, IP addresses, ports and credential-looking
// fragments are replaced with placeholders so a health endpoint never leaks
// connection strings or secrets.
package health
