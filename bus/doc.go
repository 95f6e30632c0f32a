// Package bus moves geometry packets over NATS JetStream: subject-addressed
// publish, durable pull subscriptions, and transport-owned retention.
//
// # Subjects
//
// Routing keys are dot-delimited, conventionally
// <namespace>.<domain>.<kind>.<version-tag>, e.g.
// "geometry.manifold.detect.v1". Subscriptions filter with server
// wildcard semantics, implemented locally by MatchSubject: "*" matches
// exactly one token, ">" matches one or more trailing tokens.
//
// # Delivery
//
// Publish goes through a single JetStream publish path and waits for the
// stream acknowledgment, so delivery is at-least-once and per-subject
// order follows publish order for a single publisher. Two failure classes
// get different treatment:
//
//   - Acknowledgment timeout: returned immediately wrapping
//     errors.ErrPublishTimeout, never retried by the client. The server
//     may already have stored the message; retrying blindly risks a
//     duplicate, so the caller owns that decision.
//   - Connection lost: retried with capped exponential backoff. When
//     attempts run out the error is terminal and wraps
//     errors.ErrUnavailable.
//
// Subscriptions are durable pull consumers. Subscribe is lazy: the
// durable is created or bound on the first Next, and its cursor lives on
// the server. Closing a Subscription loses nothing; the next Subscribe on
// the same pattern resumes from the first unacknowledged message. A
// message without an Ack inside the ack wait is redelivered, so consumers
// must process idempotently.
//
// # Retention
//
// Streams declared through EnsureStream default to a 30 day MaxAge.
// Retention belongs to the transport: messages expire on the server
// whether or not anyone consumed them, and slow consumers buffer in the
// stream, bounded by that window, never in process memory.
//
// # Connection lifecycle
//
// The Client is an explicit handle, not process-global state:
//
//	client, err := bus.New(
//	    bus.WithURL("nats://localhost:4222"),
//	    bus.WithName("geobus-producer"),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.EnsureStream(ctx, bus.StreamConfig{
//	    Name:     "GEOMETRY",
//	    Subjects: []string{"geometry.>"},
//	})
//
//	err = client.Publish(ctx, "geometry.manifold.detect.v1", data)
//
//	sub, err := client.Subscribe(ctx, "geometry.>")
//	for {
//	    delivery, err := sub.Next(ctx)
//	    if err != nil {
//	        break
//	    }
//	    if process(delivery.Data()) == nil {
//	        delivery.Ack()
//	    } else {
//	        delivery.Nak()
//	    }
//	}
//
// Repeated connection failures open a circuit breaker: Connect fails fast
// with errors.ErrCircuitOpen until the backoff window elapses, doubling
// per open up to a cap. Status() exposes the connection state atomically.
// All Client and Subscription methods are safe for concurrent use.
package bus
