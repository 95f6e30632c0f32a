// Package geomstore archives geometry packets in a NATS ObjectStore bucket.
package geomstore

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/s2"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tokenism/geobus/bus"
	"github.com/tokenism/geobus/codec"
	"github.com/tokenism/geobus/errors"
	"github.com/tokenism/geobus/metric"
	"github.com/tokenism/geobus/pkg/cache"
	"github.com/tokenism/geobus/storage"
)

// Objects record their payload encoding in this header, so compressed and
// plain objects can share one bucket.
const (
	encodingHeader = "Geobus-Encoding"
	encodingS2     = "s2"
)

// Store keeps geometry packets as s2-compressed blobs in a NATS ObjectStore
// bucket. It implements storage.Store and adds packet-level Archive/Load on
// top of the raw byte operations. Safe for concurrent use.
type Store struct {
	bucket   string
	compress bool

	obj   jetstream.ObjectStore
	cache cache.Cache[[]byte]

	metrics *storeMetrics
	closed  atomic.Bool
}

var _ storage.Store = (*Store)(nil)

// New opens the archive bucket on the client's JetStream context, creating
// the bucket when absent. The client must be connected.
func New(ctx context.Context, client *bus.Client, cfg Config) (*Store, error) {
	return NewWithMetrics(ctx, client, cfg, nil)
}

// NewWithMetrics is New with Prometheus instrumentation for the archive
// operations and the read cache. A nil registry disables metrics.
func NewWithMetrics(
	ctx context.Context, client *bus.Client, cfg Config, registry *metric.Registry,
) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	js, err := client.JetStream()
	if err != nil {
		return nil, err
	}

	obj, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      cfg.Bucket,
		Description: "geometry packet archive",
		MaxBytes:    cfg.MaxBytes,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, errors.WrapFatal(err, "geomstore", "New", "open bucket "+cfg.Bucket)
	}

	var copts []cache.Option[[]byte]
	if registry != nil {
		copts = append(copts, cache.WithMetrics[[]byte](registry, "geomstore_"+cfg.Bucket))
	}
	readCache, err := cache.NewFromConfig[[]byte](ctx, cfg.Cache, copts...)
	if err != nil {
		return nil, err
	}

	metrics, err := newStoreMetrics(registry, cfg.Bucket)
	if err != nil {
		_ = readCache.Close()
		return nil, errors.WrapFatal(err, "geomstore", "New", "register metrics")
	}

	return &Store{
		bucket:   cfg.Bucket,
		compress: cfg.Compression,
		obj:      obj,
		cache:    readCache,
		metrics:  metrics,
	}, nil
}

// Key derives the archive key for a packet:
//
//	geom/<kind>/<YYYY>/<MM>/<DD>/<hash>
//
// The day bucket comes from the packet timestamp and the leaf is its
// content hash, so the same packet always lands on the same key and
// re-archiving a redelivered packet is idempotent.
func Key(p codec.Packet) string {
	day := p.Timestamp.UTC().Format("2006/01/02")
	return fmt.Sprintf("geom/%s/%s/%s", p.Kind, day, p.Hash())
}

// KindPrefix returns the List prefix covering every archived packet of one
// kind.
func KindPrefix(kind codec.Kind) string {
	return "geom/" + string(kind) + "/"
}

// Archive stores a packet's wire document under its content-derived key
// and returns that key.
func (s *Store) Archive(ctx context.Context, p codec.Packet, wire []byte) (string, error) {
	if len(wire) == 0 {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: empty wire document", errors.ErrInvalidPacket),
			"geomstore", "Archive", "payload check")
	}
	key := Key(p)
	if err := s.put(ctx, "Archive", key, wire); err != nil {
		return "", err
	}
	return key, nil
}

// Load fetches an archived wire document and decodes it back to a packet.
func (s *Store) Load(ctx context.Context, key string) (codec.Packet, error) {
	data, err := s.get(ctx, "Load", key)
	if err != nil {
		return codec.Packet{}, err
	}
	return codec.Decode(data)
}

// Put stores data under key, overwriting any previous object.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	return s.put(ctx, "Put", key, data)
}

func (s *Store) put(ctx context.Context, method, key string, data []byte) error {
	if s.closed.Load() {
		return errors.ErrClosed
	}
	if err := checkKey(method, key); err != nil {
		return err
	}

	label := strings.ToLower(method)
	start := time.Now()
	defer func() { s.metrics.observeWrite(label, time.Since(start)) }()

	payload := data
	meta := jetstream.ObjectMeta{Name: key}
	if s.compress {
		payload = s2.EncodeBetter(nil, data)
		meta.Headers = nats.Header{}
		meta.Headers.Set(encodingHeader, encodingS2)
	}

	if _, err := s.obj.Put(ctx, meta, bytes.NewReader(payload)); err != nil {
		s.metrics.recordError(label)
		return s.classify(err, method, key)
	}

	_, _ = s.cache.Set(key, data)
	return nil
}

// Get returns the payload stored under key, decompressed. Reads check the
// cache before touching the bucket.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.get(ctx, "Get", key)
}

func (s *Store) get(ctx context.Context, method, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, errors.ErrClosed
	}
	if err := checkKey(method, key); err != nil {
		return nil, err
	}

	label := strings.ToLower(method)
	start := time.Now()
	defer func() { s.metrics.observeRead(label, time.Since(start)) }()

	if data, ok := s.cache.Get(key); ok {
		return data, nil
	}

	res, err := s.obj.Get(ctx, key)
	if err != nil {
		s.metrics.recordError(label)
		return nil, s.classify(err, method, key)
	}
	defer res.Close()

	info, err := res.Info()
	if err != nil {
		s.metrics.recordError(label)
		return nil, s.classify(err, method, key)
	}

	data, err := io.ReadAll(res)
	if err != nil {
		s.metrics.recordError(label)
		return nil, s.classify(err, method, key)
	}

	if info.Headers.Get(encodingHeader) == encodingS2 {
		data, err = s2.Decode(nil, data)
		if err != nil {
			s.metrics.recordError(label)
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: s2 decode: %v", errors.ErrPayloadCorrupt, err),
				"geomstore", method, "decompress "+key)
		}
	}

	_, _ = s.cache.Set(key, data)
	return data, nil
}

// Info returns metadata for the object under key without fetching its
// payload.
func (s *Store) Info(ctx context.Context, key string) (ObjectInfo, error) {
	if s.closed.Load() {
		return ObjectInfo{}, errors.ErrClosed
	}
	if err := checkKey("Info", key); err != nil {
		return ObjectInfo{}, err
	}

	start := time.Now()
	defer func() { s.metrics.observeRead("info", time.Since(start)) }()

	info, err := s.obj.GetInfo(ctx, key)
	if err != nil {
		s.metrics.recordError("info")
		return ObjectInfo{}, s.classify(err, "Info", key)
	}

	return ObjectInfo{
		Key:        info.Name,
		Size:       info.Size,
		ModTime:    info.ModTime,
		Compressed: info.Headers.Get(encodingHeader) == encodingS2,
	}, nil
}

// List returns the keys under prefix in lexicographic order. An empty
// prefix lists the whole bucket.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, errors.ErrClosed
	}

	s.metrics.recordList()

	infos, err := s.obj.List(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoObjectsFound) {
			return []string{}, nil
		}
		s.metrics.recordError("list")
		return nil, s.classify(err, "List", prefix)
	}

	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		if strings.HasPrefix(info.Name, prefix) {
			keys = append(keys, info.Name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the object under key. Deleting a missing key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return errors.ErrClosed
	}
	if err := checkKey("Delete", key); err != nil {
		return err
	}

	s.metrics.recordDelete()

	if err := s.obj.Delete(ctx, key); err != nil && !stderrors.Is(err, jetstream.ErrObjectNotFound) {
		s.metrics.recordError("delete")
		return s.classify(err, "Delete", key)
	}

	_, _ = s.cache.Delete(key)
	return nil
}

// Usage reports the bucket's object count and stored bytes, refreshing the
// corresponding gauges.
type Usage struct {
	Bucket  string
	Objects int
	Bytes   uint64
}

// ObjectInfo describes one archived object.
type ObjectInfo struct {
	Key        string
	Size       uint64 // stored size, after compression
	ModTime    time.Time
	Compressed bool
}

// Usage inspects the bucket and updates the object count and storage byte
// gauges. Callers poll it at whatever cadence their reporting needs.
func (s *Store) Usage(ctx context.Context) (Usage, error) {
	if s.closed.Load() {
		return Usage{}, errors.ErrClosed
	}

	status, err := s.obj.Status(ctx)
	if err != nil {
		s.metrics.recordError("status")
		return Usage{}, s.classify(err, "Usage", s.bucket)
	}

	keys, err := s.List(ctx, "")
	if err != nil {
		return Usage{}, err
	}

	u := Usage{Bucket: s.bucket, Objects: len(keys), Bytes: status.Size()}
	s.metrics.updateUsage(u.Objects, u.Bytes)
	return u, nil
}

// Bucket returns the bucket name the store writes to.
func (s *Store) Bucket() string {
	return s.bucket
}

// Close releases the read cache. Operations after Close report ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.cache.Close()
}

// classify maps bucket access failures onto the shared error classes.
func (s *Store) classify(err error, method, key string) error {
	switch {
	case stderrors.Is(err, jetstream.ErrObjectNotFound):
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key),
			"geomstore", method, "lookup in "+s.bucket)
	case stderrors.Is(err, jetstream.ErrBucketNotFound):
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrBucketNotFound, s.bucket),
			"geomstore", method, "bucket lookup")
	case stderrors.Is(err, context.Canceled),
		stderrors.Is(err, context.DeadlineExceeded),
		stderrors.Is(err, nats.ErrTimeout),
		stderrors.Is(err, nats.ErrConnectionClosed),
		stderrors.Is(err, nats.ErrConnectionDraining):
		return errors.WrapTransient(err, "geomstore", method, "bucket access")
	default:
		return errors.Wrap(err, "geomstore", method, "bucket access")
	}
}

func checkKey(method, key string) error {
	if key == "" {
		return errors.WrapInvalid(fmt.Errorf("key must be non-empty"),
			"geomstore", method, "key check")
	}
	return nil
}
