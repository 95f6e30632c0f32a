// Package geomstore archives geometry packet wire documents in a NATS
// ObjectStore bucket.
//
// # Keys
//
// Packets are keyed by content:
//
//	geom/<kind>/<YYYY>/<MM>/<DD>/<sha256>
//
// The day bucket is the packet timestamp in UTC; the leaf is the packet's
// content hash. The same packet always maps to the same key, so archiving
// a redelivered message is idempotent, and List with KindPrefix scans one
// kind without touching the others.
//
// # Compression
//
// Payloads are s2-compressed before upload when the store is configured
// for it. Each object records its encoding in a header, so a bucket can
// hold a mix of compressed and plain objects and Get always returns the
// original bytes. A payload that fails to decompress reports
// errors.ErrPayloadCorrupt.
//
// # Reads
//
// Gets consult an in-process cache (pkg/cache, sized by Config.Cache)
// before touching the bucket. Writes populate the cache, so an archive
// immediately followed by a read never leaves the process.
//
// Typical consumer wiring:
//
//	store, err := geomstore.NewWithMetrics(ctx, client, geomstore.DefaultConfig(), registry)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	key, err := store.Archive(ctx, packet, wire)
package geomstore
