package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tokenism/geobus/errors"
	"github.com/tokenism/geobus/pkg/retry"
)

func TestNew_Defaults(t *testing.T) {
	client, err := New()
	require.NoError(t, err)

	assert.Equal(t, nats.DefaultURL, client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, time.Second, client.Backoff())
}

func TestNew_Options(t *testing.T) {
	client, err := New(
		WithURL("nats://example:4222"),
		WithName("geobus-test"),
		WithTimeout(2*time.Second),
		WithCircuitThreshold(3),
	)
	require.NoError(t, err)
	assert.Equal(t, "nats://example:4222", client.URL())
	assert.Equal(t, "geobus-test", client.name)
	assert.Equal(t, 2*time.Second, client.timeout)
	assert.Equal(t, int32(3), client.circuitThreshold)
}

func TestNew_RejectsBadOptions(t *testing.T) {
	_, err := New(WithURL(""))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsInvalid(err))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)

	_, err = New(WithPublishRetry(pkgerrors.RetryConfig{MaxRetries: -1}))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsInvalid(err))
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusClosed, "closed"},
		{Status(42), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	client, err := New()
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		client.recordFailure()
	}
	assert.False(t, client.circuitOpen.Load())

	client.recordFailure()
	assert.True(t, client.circuitOpen.Load())
	assert.Equal(t, int32(5), client.Failures())
}

func TestCircuitBreaker_CustomThreshold(t *testing.T) {
	client, err := New(WithCircuitThreshold(2))
	require.NoError(t, err)

	client.recordFailure()
	assert.False(t, client.circuitOpen.Load())
	client.recordFailure()
	assert.True(t, client.circuitOpen.Load())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	client, err := New()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.True(t, client.circuitOpen.Load())

	client.resetCircuit()
	assert.False(t, client.circuitOpen.Load())
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, time.Second, client.Backoff())
}

func TestCircuitBreaker_BackoffDoublesPerOpen(t *testing.T) {
	client, err := New()
	require.NoError(t, err)
	assert.Equal(t, time.Second, client.Backoff())

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 2*time.Second, client.Backoff())

	// Half-open and trip the breaker again.
	client.allowRetry()
	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 4*time.Second, client.Backoff())
}

func TestCircuitBreaker_BackoffCapped(t *testing.T) {
	client, err := New(WithMaxBackoff(2 * time.Second))
	require.NoError(t, err)

	for round := 0; round < 4; round++ {
		for i := 0; i < 5; i++ {
			client.recordFailure()
		}
		client.allowRetry()
	}
	assert.LessOrEqual(t, client.Backoff(), 2*time.Second)
}

func TestConnect_FailsFastWhileCircuitOpen(t *testing.T) {
	client, err := New()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	require.True(t, client.circuitOpen.Load())

	start := time.Now()
	err = client.Connect(context.Background())
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, pkgerrors.ErrCircuitOpen)
	assert.Less(t, elapsed, 50*time.Millisecond)
}

func TestConnect_AfterCloseFails(t *testing.T) {
	client, err := New()
	require.NoError(t, err)
	require.NoError(t, client.Close())

	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, pkgerrors.ErrClosed)
}

func TestClose_Idempotent(t *testing.T) {
	client, err := New()
	require.NoError(t, err)

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
	assert.Equal(t, StatusClosed, client.Status())
}

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
	}{
		{"disconnected to connecting", StatusDisconnected, StatusConnecting},
		{"connecting to connected", StatusConnecting, StatusConnected},
		{"connected back to connecting on drop", StatusConnected, StatusConnecting},
		{"connected to closed", StatusConnected, StatusClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New()
			require.NoError(t, err)
			client.setStatus(tt.from)
			client.setStatus(tt.to)
			assert.Equal(t, tt.to, client.Status())
		})
	}
}

func TestIsHealthy_NeedsLiveConnection(t *testing.T) {
	client, err := New()
	require.NoError(t, err)

	// Status alone is not enough: a connected status without a live
	// connection underneath still reports unhealthy.
	for _, status := range []Status{StatusDisconnected, StatusConnecting, StatusConnected, StatusClosed} {
		client.setStatus(status)
		assert.False(t, client.IsHealthy(), "status %s", status)
	}
}

func TestPublish_Guards(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		client, err := New()
		require.NoError(t, err)

		err = client.Publish(context.Background(), "geometry.manifold.detect.v1", []byte("x"))
		assert.ErrorIs(t, err, pkgerrors.ErrNoConnection)
	})

	t.Run("closed", func(t *testing.T) {
		client, err := New()
		require.NoError(t, err)
		require.NoError(t, client.Close())

		err = client.Publish(context.Background(), "geometry.manifold.detect.v1", []byte("x"))
		assert.ErrorIs(t, err, pkgerrors.ErrClosed)
	})

	t.Run("wildcard subject rejected", func(t *testing.T) {
		client, err := New()
		require.NoError(t, err)

		err = client.Publish(context.Background(), "geometry.>", []byte("x"))
		require.Error(t, err)
		assert.ErrorIs(t, err, nats.ErrBadSubject)
		assert.True(t, pkgerrors.IsInvalid(err))
	})

	t.Run("empty token rejected", func(t *testing.T) {
		client, err := New()
		require.NoError(t, err)

		err = client.Publish(context.Background(), "geometry..detect", []byte("x"))
		assert.ErrorIs(t, err, nats.ErrBadSubject)
	})
}

// classifyPublish decides the retry policy: timeouts and missing streams
// pass through once, connection loss goes back to the retry loop.
func TestClassifyPublish(t *testing.T) {
	client, err := New()
	require.NoError(t, err)

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, client.classifyPublish(nil, "s.u.b.j", 1))
	})

	t.Run("ack timeout is terminal and transient", func(t *testing.T) {
		err := client.classifyPublish(nats.ErrTimeout, "s.u.b.j", 1)
		require.Error(t, err)
		assert.True(t, retry.IsNonRetryable(err))
		assert.ErrorIs(t, err, pkgerrors.ErrPublishTimeout)
		assert.True(t, pkgerrors.IsTransient(err))
	})

	t.Run("context deadline counts as ack timeout", func(t *testing.T) {
		err := client.classifyPublish(context.DeadlineExceeded, "s.u.b.j", 1)
		assert.True(t, retry.IsNonRetryable(err))
		assert.ErrorIs(t, err, pkgerrors.ErrPublishTimeout)
	})

	t.Run("no stream response is terminal and invalid", func(t *testing.T) {
		err := client.classifyPublish(jetstream.ErrNoStreamResponse, "s.u.b.j", 1)
		assert.True(t, retry.IsNonRetryable(err))
		assert.ErrorIs(t, err, pkgerrors.ErrStreamNotFound)
		assert.True(t, pkgerrors.IsInvalid(err))
	})

	t.Run("connection closed is retryable", func(t *testing.T) {
		err := client.classifyPublish(nats.ErrConnectionClosed, "s.u.b.j", 1)
		require.Error(t, err)
		assert.False(t, retry.IsNonRetryable(err))
		assert.ErrorIs(t, err, pkgerrors.ErrConnectionLost)
	})

	t.Run("unknown errors are terminal", func(t *testing.T) {
		err := client.classifyPublish(errors.New("weird broker state"), "s.u.b.j", 1)
		assert.True(t, retry.IsNonRetryable(err))
	})
}

func TestIsConnectionLost(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"sentinel", pkgerrors.ErrConnectionLost, true},
		{"nats closed", nats.ErrConnectionClosed, true},
		{"nats draining", nats.ErrConnectionDraining, true},
		{"nats reconnecting", nats.ErrConnectionReconnecting, true},
		{"no servers", nats.ErrNoServers, true},
		{"reconnect buffer full", nats.ErrReconnectBufExceeded, true},
		{"timeout is not connection loss", nats.ErrTimeout, false},
		{"nil", nil, false},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConnectionLost(tt.err))
		})
	}
}

func TestWaitForConnection(t *testing.T) {
	t.Run("times out when not connected", func(t *testing.T) {
		client, err := New()
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err = client.WaitForConnection(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
	})

	t.Run("returns immediately when connected", func(t *testing.T) {
		client, err := New()
		require.NoError(t, err)
		client.setStatus(StatusConnected)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		start := time.Now()
		require.NoError(t, client.WaitForConnection(ctx))
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("returns once status flips", func(t *testing.T) {
		client, err := New()
		require.NoError(t, err)

		go func() {
			time.Sleep(50 * time.Millisecond)
			client.setStatus(StatusConnected)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, client.WaitForConnection(ctx))
	})
}

func TestRTT_NotConnected(t *testing.T) {
	client, err := New()
	require.NoError(t, err)

	_, err = client.RTT()
	assert.ErrorIs(t, err, pkgerrors.ErrNoConnection)
}

func TestJetStream_NotConnected(t *testing.T) {
	client, err := New()
	require.NoError(t, err)

	_, err = client.JetStream()
	assert.ErrorIs(t, err, pkgerrors.ErrNoConnection)
}

func TestConcurrentSafety(t *testing.T) {
	client, err := New()
	require.NoError(t, err)

	var wg sync.WaitGroup
	const iterations = 100

	wg.Add(5)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			client.setStatus(StatusConnecting)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			client.setStatus(StatusConnected)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			_ = client.Status()
			_ = client.IsHealthy()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			client.recordFailure()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			client.resetCircuit()
			_ = client.Backoff()
		}
	}()
	wg.Wait()

	assert.Contains(t, []Status{
		StatusDisconnected,
		StatusConnecting,
		StatusConnected,
	}, client.Status())
}
