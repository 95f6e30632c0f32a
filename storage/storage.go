// Package storage defines the pluggable backend interface for the packet
// archive.
package storage

import "context"

// Store is the backend contract for archiving binary blobs under
// hierarchical string keys. geomstore.Store implements it on NATS
// ObjectStore; alternative backends (filesystem, S3) satisfy the same
// surface.
//
// Keys are "/"-separated paths, values are opaque bytes. Implementations
// must be safe for concurrent use.
type Store interface {
	// Put stores data under key, overwriting any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the data stored under key. A missing key reports
	// ErrKeyNotFound through the errors package classification.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the keys matching prefix in lexicographic order.
	// An empty prefix lists every key; no matches yields an empty slice.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the value under key. Deleting a missing key is a
	// no-op.
	Delete(ctx context.Context, key string) error
}
