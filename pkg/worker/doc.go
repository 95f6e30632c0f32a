// Package worker provides a generic, thread-safe worker pool for concurrent
// task processing.
//
// # Overview
//
// The pool manages a fixed number of goroutines consuming a bounded queue.
// The tap consumer uses it to fan packet deliveries out across decode and
// archive handlers while keeping memory bounded: when workers fall behind,
// Submit returns ErrQueueFull and the caller Naks the delivery so the
// server redelivers later.
//
//	pool := worker.NewPool[bus.Delivery](
//	    8,    // workers
//	    512,  // queue size
//	    func(ctx context.Context, d bus.Delivery) error {
//	        return handle(ctx, d)
//	    },
//	)
//	if err := pool.Start(ctx); err != nil { ... }
//	defer pool.Stop(10 * time.Second)
//
// # Backpressure
//
// Submit() never blocks. A full queue returns ErrQueueFull immediately,
// which is the backpressure signal: callers either drop, Nak, or retry with
// the retry package. Blocking submits were rejected because they complicate
// ack deadlines on the consumer path.
//
// # Lifecycle
//
// Start() may be called once; Submit() fails before Start() and after
// Stop(). Stop(timeout) closes the queue, lets workers drain in-flight
// items, and returns ErrStopTimeout if they do not finish in time. Workers
// also exit when the Start() context is cancelled.
//
// # Observability
//
// Statistics are always tracked with atomics and available via Stats().
// Prometheus metrics are opt-in via WithMetricsRegistry and expose queue
// depth, utilization, submitted/processed/failed/dropped totals, and a
// per-status processing duration histogram.
//
// # Limitations
//
// FIFO only, no per-item cancellation, fixed worker count. Per-item
// timeouts belong in the processor function via the context.
package worker
