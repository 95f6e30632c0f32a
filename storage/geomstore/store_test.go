package geomstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenism/geobus/codec"
	pkgerrors "github.com/tokenism/geobus/errors"
	"github.com/tokenism/geobus/pkg/cache"
)

func hyperbolicPacket(opts ...codec.Option) codec.Packet {
	return codec.NewPacket(codec.KindHyperbolic, codec.Geometry{
		Dimension: 2,
		Curvature: -1.0,
		Points:    [][]float64{{0.1, 0.2}, {0.3, -0.1}},
	}, "embedder-7", opts...)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "geometry-packets", cfg.Bucket)
	assert.True(t, cfg.Compression)
	assert.Equal(t, cache.StrategyLRU, cfg.Cache.Strategy)
	assert.Equal(t, 512, cfg.Cache.MaxSize)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errIs  error
	}{
		{
			name:   "empty bucket",
			mutate: func(c *Config) { c.Bucket = "" },
			errIs:  pkgerrors.ErrMissingConfig,
		},
		{
			name:   "dotted bucket",
			mutate: func(c *Config) { c.Bucket = "geometry.packets" },
			errIs:  pkgerrors.ErrInvalidConfig,
		},
		{
			name:   "bucket with slash",
			mutate: func(c *Config) { c.Bucket = "geom/packets" },
			errIs:  pkgerrors.ErrInvalidConfig,
		},
		{
			name:   "bucket with wildcard",
			mutate: func(c *Config) { c.Bucket = "geom*" },
			errIs:  pkgerrors.ErrInvalidConfig,
		},
		{
			name:   "negative size cap",
			mutate: func(c *Config) { c.MaxBytes = -1 },
			errIs:  pkgerrors.ErrInvalidConfig,
		},
		{
			name:   "lru cache without size",
			mutate: func(c *Config) { c.Cache.MaxSize = 0 },
			errIs:  pkgerrors.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, pkgerrors.IsInvalid(err))
			assert.ErrorIs(t, err, tt.errIs)
		})
	}
}

func TestKey_Format(t *testing.T) {
	when := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)
	p := hyperbolicPacket(codec.WithTimestamp(when))

	key := Key(p)

	assert.Regexp(t, `^geom/hyperbolic/2026/02/14/[0-9a-f]{64}$`, key)
	assert.Equal(t, key, Key(p), "same packet must map to the same key")
}

func TestKey_DayBucketUsesUTC(t *testing.T) {
	east := time.FixedZone("UTC+9", 9*60*60)
	// 02:00 on March 2nd in UTC+9 is still March 1st in UTC.
	when := time.Date(2026, 3, 2, 2, 0, 0, 0, east)
	p := hyperbolicPacket(codec.WithTimestamp(when))

	assert.Contains(t, Key(p), "/2026/03/01/")
}

func TestKey_DistinctPacketsDistinctKeys(t *testing.T) {
	when := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)
	a := hyperbolicPacket(codec.WithTimestamp(when))

	b := hyperbolicPacket(codec.WithTimestamp(when))
	b.Geometry.Points = [][]float64{{0.1, 0.2}, {0.3, -0.2}}

	assert.NotEqual(t, Key(a), Key(b))
}

func TestKindPrefix(t *testing.T) {
	p := hyperbolicPacket()

	prefix := KindPrefix(codec.KindHyperbolic)
	assert.Equal(t, "geom/hyperbolic/", prefix)
	assert.True(t, len(Key(p)) > len(prefix))
	assert.Equal(t, prefix, Key(p)[:len(prefix)])

	assert.Equal(t, "geom/dirichlet/", KindPrefix(codec.KindDirichlet))
	assert.Equal(t, "geom/attribution/", KindPrefix(codec.KindAttribution))
}

func TestStore_ClosedGuards(t *testing.T) {
	s := &Store{bucket: "geometry-packets", cache: cache.NewNoop[[]byte]()}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	ctx := context.Background()
	p := hyperbolicPacket()

	err := s.Put(ctx, "geom/x", []byte("data"))
	assert.ErrorIs(t, err, pkgerrors.ErrClosed)

	_, err = s.Get(ctx, "geom/x")
	assert.ErrorIs(t, err, pkgerrors.ErrClosed)

	_, err = s.List(ctx, "")
	assert.ErrorIs(t, err, pkgerrors.ErrClosed)

	err = s.Delete(ctx, "geom/x")
	assert.ErrorIs(t, err, pkgerrors.ErrClosed)

	_, err = s.Info(ctx, "geom/x")
	assert.ErrorIs(t, err, pkgerrors.ErrClosed)

	_, err = s.Usage(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrClosed)

	_, err = s.Archive(ctx, p, []byte(`{"v":"0.2"}`))
	assert.ErrorIs(t, err, pkgerrors.ErrClosed)

	_, err = s.Load(ctx, "geom/x")
	assert.ErrorIs(t, err, pkgerrors.ErrClosed)
}

func TestStore_RejectsEmptyKey(t *testing.T) {
	s := &Store{bucket: "geometry-packets", cache: cache.NewNoop[[]byte]()}
	ctx := context.Background()

	err := s.Put(ctx, "", []byte("data"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsInvalid(err))

	_, err = s.Get(ctx, "")
	assert.True(t, pkgerrors.IsInvalid(err))

	err = s.Delete(ctx, "")
	assert.True(t, pkgerrors.IsInvalid(err))

	_, err = s.Info(ctx, "")
	assert.True(t, pkgerrors.IsInvalid(err))
}

func TestArchive_RejectsEmptyWire(t *testing.T) {
	s := &Store{bucket: "geometry-packets", cache: cache.NewNoop[[]byte]()}

	_, err := s.Archive(context.Background(), hyperbolicPacket(), nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsInvalid(err))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidPacket)
}

func TestClassify(t *testing.T) {
	s := &Store{bucket: "geometry-packets"}

	t.Run("missing object", func(t *testing.T) {
		err := s.classify(jetstream.ErrObjectNotFound, "Get", "geom/x")
		assert.True(t, pkgerrors.IsInvalid(err))
		assert.ErrorIs(t, err, pkgerrors.ErrKeyNotFound)
		assert.Contains(t, err.Error(), "geom/x")
	})

	t.Run("missing bucket", func(t *testing.T) {
		err := s.classify(jetstream.ErrBucketNotFound, "List", "")
		assert.True(t, pkgerrors.IsInvalid(err))
		assert.ErrorIs(t, err, pkgerrors.ErrBucketNotFound)
	})

	t.Run("transient transport failures", func(t *testing.T) {
		for _, cause := range []error{
			nats.ErrTimeout,
			nats.ErrConnectionClosed,
			context.Canceled,
			context.DeadlineExceeded,
		} {
			err := s.classify(cause, "Put", "geom/x")
			assert.True(t, pkgerrors.IsTransient(err), "cause %v", cause)
			assert.ErrorIs(t, err, cause)
		}
	})

	t.Run("unknown stays unclassified", func(t *testing.T) {
		err := s.classify(fmt.Errorf("boom"), "Put", "geom/x")
		assert.False(t, pkgerrors.IsInvalid(err))
		assert.False(t, pkgerrors.IsFatal(err))
		assert.Contains(t, err.Error(), "geomstore.Put")
	})
}
