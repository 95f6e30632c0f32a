// Package geobus defines the geometry packet protocol and the transport
// bus that moves geometry between services.
//
// # What moves on the bus
//
// The unit of exchange is the geometry packet: a versioned JSON envelope
// carrying a point cloud, its declared dimension and curvature, and a
// base64 coordinate payload quantized at half, single or double
// precision. Three packet kinds exist:
//
//   - hyperbolic: point clouds in the Poincaré ball (negative curvature,
//     norms < 1), typically tree embeddings
//   - dirichlet: attribution vectors on the probability simplex
//   - attribution: dirichlet draws annotated with their concentration
//
// Packets are content-addressed: Hash covers version, kind, source,
// timestamp and geometry, so identical content hashes identically no
// matter who encoded it.
//
// # Pipeline
//
//	┌────────────┐   geometry.sim.<kind>.v0-2    ┌────────────┐
//	│ geobus-sim │ ────────────────────────────► │  GEOMETRY  │
//	│ (producer) │        publish                │   stream   │
//	└────────────┘                               └─────┬──────┘
//	                                                   │ durable pull
//	                                             ┌─────▼──────┐
//	                                             │ geobus-tap │
//	                                             │ (consumer) │
//	                                             └─────┬──────┘
//	                      inspect, classify, dedupe    │
//	                                             ┌─────▼──────┐
//	                                             │  geomstore │
//	                                             │  (archive) │
//	                                             └────────────┘
//
// The stream owns retention: packets expire after the configured MaxAge
// whether or not anything read them, and a slow consumer's backlog lives
// on the server, not in process memory. Durable consumer cursors survive
// process restarts, so a tap resumes exactly where its predecessor
// stopped.
//
// # Packages
//
// Protocol:
//   - codec: packet encode/decode, precision quantization, content hash
//   - errors: classified errors (Transient, Invalid, Fatal) with retry
//     policies
//
// Geometry:
//   - spectral: heat-kernel filtering on the packet graph Laplacian
//   - hyperbolic: Poincaré ball embeddings and distance
//   - dirichlet: simplex sampling and attribution math
//   - manifold: curvature estimation and geometry-class detection
//
// Transport:
//   - bus: JetStream client, subject grammar, streams, durable pull
//     subscriptions
//
// Services:
//   - producer: simulated geometry workloads published at a configured
//     rate
//   - consumer: durable tap running the detector with worker fan-out,
//     dedupe and ack/nak settlement
//
// Storage:
//   - storage: key-value contracts
//   - storage/geomstore: s2-compressed packet archive on the ObjectStore
//
// Infrastructure:
//   - config: file + environment configuration with validation
//   - metric: Prometheus registry, core metrics, scrape server
//   - health: component health statuses
//   - pkg/buffer, pkg/cache, pkg/retry, pkg/worker, pkg/timestamp:
//     bounded staging, TTL/LRU caches, backoff, pools, wire timestamps
//
// Binaries:
//   - cmd/geobus-sim: workload generator service
//   - cmd/geobus-tap: stream consumer service
//   - cmd/geobus-streams: stream administration (ensure, info, list,
//     purge, delete)
//
// # Usage
//
// Publishing a packet:
//
//	client, _ := bus.New(bus.WithURL("nats://localhost:4222"))
//	client.Connect(ctx)
//
//	pkt := codec.NewPacket(codec.KindHyperbolic, geometry, "my-service")
//	wire, _ := codec.Encode(pkt)
//	client.Publish(ctx, "geometry.analysis.hyperbolic.v0-2", wire)
//
// Consuming and classifying:
//
//	sub, _ := client.Subscribe(ctx, "geometry.>")
//	for {
//	    delivery, err := sub.Next(ctx)
//	    if err != nil {
//	        break
//	    }
//	    pkt, err := codec.Decode(delivery.Data())
//	    if err != nil {
//	        delivery.Term()
//	        continue
//	    }
//	    report, _ := manifold.Inspect(pkt, manifold.DefaultThresholds())
//	    delivery.Ack()
//	    _ = report.Class
//	}
//
// The consumer package wraps this loop with a worker pool, dedupe cache,
// archival and metrics; services should use it rather than hand-rolling
// the settlement discipline.
//
// # Design principles
//
// Classified failure:
//   - every error is Transient, Invalid or Fatal
//   - retries attach to classes, not call sites
//   - a malformed packet terminates, an unreachable store redelivers
//
// Bounded everything:
//   - staging buffers, worker queues and caches carry explicit capacities
//   - overflow drops the oldest staged work and counts it
//
// Testability:
//   - explicit dependencies, no globals
//   - unit tests run without a server; integration tests boot one with
//     testcontainers
package geobus
