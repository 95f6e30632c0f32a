// Package buffer provides generic, thread-safe buffers with overflow policies.
//
// The simulation producer stages encoded packets in a CircularBuffer so
// bursts survive short publish stalls without unbounded memory growth:
//   - CircularBuffer: fixed-size buffer with configurable overflow policies
//   - DropOldest, DropNewest, and Block overflow policies
//   - Statistics always collected for observability
//   - Optional Prometheus metrics via WithMetrics()
package buffer

// Buffer is the interface all buffer implementations satisfy,
// parameterized by item type T.
type Buffer[T any] interface {
	// Write adds an item to the buffer. Behavior on a full buffer depends
	// on the overflow policy.
	Write(item T) error

	// Read retrieves and removes one item. Returns the zero value and
	// false when the buffer is empty.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max items. The returned slice
	// may be shorter than max.
	ReadBatch(max int) []T

	// Peek retrieves one item without removing it.
	Peek() (T, bool)

	// Size returns the current number of items.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// IsFull reports whether the buffer is at capacity.
	IsFull() bool

	// IsEmpty reports whether the buffer holds no items.
	IsEmpty() bool

	// Clear removes all items.
	Clear()

	// Stats returns buffer statistics.
	Stats() *Statistics

	// Close shuts down the buffer and wakes any blocked writers.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest

	// Block causes Write operations to block until space is available.
	Block
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	case Block:
		return "Block"
	default:
		return "Unknown"
	}
}

// DropCallback is called with each item dropped by the overflow policy.
// It runs outside the buffer lock; implementations may call back into the
// buffer.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a circular buffer with the given capacity.
// Statistics are always collected; Prometheus metrics are optional via
// WithMetrics(). Returns an error if metrics registration fails.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
