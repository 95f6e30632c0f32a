package consumer

import (
	"context"
	"time"

	"github.com/tokenism/geobus/bus"
	"github.com/tokenism/geobus/codec"
	"github.com/tokenism/geobus/manifold"
)

// verdict is the ack disposition the pipeline settles on for a delivery.
type verdict int

const (
	// verdictAck acknowledges a fully processed packet.
	verdictAck verdict = iota

	// verdictDuplicate acknowledges a packet the dedupe window already saw.
	verdictDuplicate

	// verdictNak pushes the delivery back for redelivery.
	verdictNak

	// verdictTerm drops the delivery permanently.
	verdictTerm
)

// process runs the pipeline on one delivery and applies the verdict to its
// ack state. Returned errors feed the worker pool's failure counters; the
// delivery itself is always settled here.
func (c *Consumer) process(ctx context.Context, d bus.Delivery) error {
	v, err := c.handle(ctx, d.Subject(), d.Data())

	switch v {
	case verdictAck, verdictDuplicate:
		if ackErr := d.Ack(); ackErr != nil {
			// The packet hash is in the dedupe window, so the
			// redelivery this causes will be acknowledged cheaply.
			c.logger.Warn("ack failed, delivery will redeliver",
				"subject", d.Subject(), "deliveries", d.Deliveries(), "error", ackErr)
		}
	case verdictNak:
		if nakErr := d.Nak(); nakErr != nil {
			c.logger.Warn("nak failed, redelivery waits for the ack deadline",
				"subject", d.Subject(), "error", nakErr)
		}
	case verdictTerm:
		if termErr := d.Term(); termErr != nil {
			c.logger.Warn("terminate failed, delivery will redeliver",
				"subject", d.Subject(), "error", termErr)
		}
	}
	return err
}

// handle decodes, deduplicates, inspects and archives one wire document.
// Undecodable payloads terminate: redelivering bytes that cannot parse can
// never succeed. Archive failures nak so the store outage is retried with
// the packet intact on the server.
func (c *Consumer) handle(ctx context.Context, subject string, data []byte) (verdict, error) {
	start := time.Now()

	pkt, err := codec.Decode(data)
	if err != nil {
		c.terminated.Add(1)
		c.metrics.recordProcessed("unknown", "terminated")
		c.metrics.recordError("decode")
		c.logger.Error("undecodable packet terminated",
			"subject", subject, "bytes", len(data), "error", err)
		return verdictTerm, err
	}
	c.metrics.recordReceived(string(pkt.Kind))

	hash := pkt.Hash()
	if c.dedupe != nil {
		if firstID, ok := c.dedupe.Get(hash); ok {
			c.duplicates.Add(1)
			c.metrics.recordProcessed(string(pkt.Kind), "duplicate")
			c.logger.Debug("duplicate packet acknowledged",
				"subject", subject, "hash", hash, "first_packet_id", firstID)
			return verdictDuplicate, nil
		}
	}

	report, err := manifold.Inspect(pkt, c.thresholds)
	if err != nil {
		// Decode admitted the packet, so a failing inspection means
		// geometry no redelivery can repair.
		c.terminated.Add(1)
		c.metrics.recordProcessed(string(pkt.Kind), "terminated")
		c.metrics.recordError("inspect")
		c.logger.Error("uninspectable packet terminated",
			"subject", subject, "kind", string(pkt.Kind), "error", err)
		return verdictTerm, err
	}
	c.metrics.recordClass(string(report.Class))
	for _, warning := range report.Warnings {
		c.metrics.recordWarning()
		c.logger.Warn("geometry inspection warning",
			"subject", subject,
			"kind", string(pkt.Kind),
			"packet_id", pkt.Metadata["packet_id"],
			"estimate", report.Estimate,
			"class", string(report.Class),
			"warning", warning)
	}

	if c.cfg.Archive && c.archive != nil {
		key, err := c.archive.Archive(ctx, pkt, data)
		if err != nil {
			c.nakked.Add(1)
			c.metrics.recordProcessed(string(pkt.Kind), "nakked")
			c.metrics.recordError("archive")
			c.logger.Error("archive failed, delivery nakked",
				"subject", subject, "kind", string(pkt.Kind), "error", err)
			return verdictNak, err
		}
		c.archived.Add(1)
		c.logger.Debug("packet archived", "key", key)
	}

	if c.dedupe != nil {
		if _, err := c.dedupe.Set(hash, pkt.Metadata["packet_id"]); err != nil {
			c.logger.Debug("dedupe record failed", "hash", hash, "error", err)
		}
	}

	c.acked.Add(1)
	c.metrics.recordProcessed(string(pkt.Kind), "acked")
	c.metrics.observeHandle(time.Since(start))
	c.logger.Debug("packet processed",
		"subject", subject,
		"kind", string(pkt.Kind),
		"class", string(report.Class),
		"estimate", report.Estimate)
	return verdictAck, nil
}
