// Package consumer implements the tap service: a durable pull consumer
// that decodes geometry packets, classifies their curvature and settles
// every delivery explicitly.
//
// # Flow
//
// One pull loop fetches deliveries from a durable subscription and fans
// them out over a bounded worker pool. Pulls are server-side, so a slow
// tap leaves its backlog in the stream instead of process memory; the
// backlog is sampled into a pending gauge. When the worker queue stays
// full past a short backoff the delivery is nakked back to the server.
//
// # Settlement
//
// Each delivery ends in exactly one of:
//
//   - ack: decoded, inspected and (when configured) archived
//   - ack as duplicate: the packet hash is inside the dedupe window
//   - term: bytes that cannot decode, which no redelivery can fix
//   - nak: a transient failure worth redelivering, such as an archive
//     outage or a full worker queue
//
// The dedupe window is a TTL cache on the packet content hash. It is
// recorded only after successful processing, so a packet that naks is
// reprocessed in full on redelivery, while an ack lost to a connection
// blip costs one cheap duplicate acknowledgment.
//
// # Inspection
//
// Every decoded packet runs through the manifold detector. The resulting
// class feeds a per-class counter, and warnings, such as a declared kind
// disagreeing with the curvature estimate, are logged with the packet id.
//
// Typical wiring:
//
//	tap, err := consumer.New(consumer.Deps{
//		Config:   cfg.Consumer,
//		Manifold: cfg.Manifold,
//		Client:   client,
//		Archive:  store,
//		Registry: registry,
//	})
//	if err != nil {
//		return err
//	}
//	if err := tap.Start(ctx); err != nil {
//		return err
//	}
//	defer tap.Stop(5 * time.Second)
package consumer
