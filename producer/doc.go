// Package producer generates synthetic geometry workloads and publishes
// them on the bus at a configured rate.
//
// # Workloads
//
// Four seeded generators are selectable through
// config.ProducerConfig.Workload:
//
//   - hyperbolic: random trees embedded into the Poincare ball
//   - dirichlet: Dirichlet fits over synthetic simplex rows
//   - attribution: the attribution view of the same fits
//   - mixed: the three kinds in rotation
//
// A fixed Seed replays the same packet sequence, which makes load tests
// and demos reproducible. When Filter is set, the spectral filter
// rank-weights the raw draws before they become trees or simplex rows.
//
// # Flow
//
// Generation is admitted through a token bucket (Rate packets/s with a
// Burst allowance) and encoded packets are staged in a bounded circular
// buffer. A separate loop drains the buffer and publishes. When
// publishing stalls, the buffer evicts its oldest entries rather than
// growing, and a failed publish drops that packet after logging it.
// Production never halts on a single bad packet.
//
// # Subjects
//
// Packets are routed by kind under one namespace:
//
//	<namespace>.sim.<kind>.v0-2
//
// The trailing token pins the wire format version so subscribers can
// filter for the codec revision they understand.
//
// Typical wiring:
//
//	prod, err := producer.New(producer.Deps{
//		Config:   cfg.Producer,
//		Spectral: cfg.Spectral,
//		Client:   client,
//		Registry: registry,
//	})
//	if err != nil {
//		return err
//	}
//	if err := prod.Start(ctx); err != nil {
//		return err
//	}
//	defer prod.Stop(5 * time.Second)
package producer
