// Package buffer provides thread-safe circular buffers with configurable
// overflow policies, built-in statistics, and optional Prometheus metrics.
//
// # Overview
//
// The simulation producer generates geometry packets faster than the bus
// accepts them during reconnect windows. A bounded circular buffer absorbs
// those bursts with a declared policy for what happens when it fills,
// instead of growing a slice without limit.
//
// # Quick Start
//
//	buf, err := buffer.NewCircularBuffer[[]byte](4096,
//	    buffer.WithOverflowPolicy[[]byte](buffer.DropOldest),
//	    buffer.WithMetrics[[]byte](registry, "sim_publish_queue"),
//	)
//	if err != nil { ... }
//
//	_ = buf.Write(encoded)
//	batch := buf.ReadBatch(64)
//
// # Overflow Policies
//
//   - DropOldest: remove the oldest item to make room (default)
//   - DropNewest: reject new items when full
//   - Block: Write waits for space; use WriteWithContext for cancellation
//
// A DropCallback observes every dropped item, which the producer uses to
// count lost packets. Callbacks run outside the buffer lock.
//
// # Observability
//
// Statistics (writes, reads, drops, overflow and drop rates, high-water
// mark) are always collected and available via Stats(). WithMetrics
// additionally exports them as Prometheus metrics labeled by component.
package buffer
