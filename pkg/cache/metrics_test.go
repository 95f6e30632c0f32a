package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenism/geobus/metric"
)

func gatherNames(t *testing.T, registry *metric.Registry) map[string]bool {
	t.Helper()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	return names
}

func TestWithMetrics_RegistersCollectors(t *testing.T) {
	registry := metric.NewRegistry()

	c, err := NewLRU[int](10, WithMetrics[int](registry, "geomstore"))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Set("k", 1)
	require.NoError(t, err)
	_, hit := c.Get("k")
	assert.True(t, hit)
	_, miss := c.Get("absent")
	assert.False(t, miss)

	names := gatherNames(t, registry)
	for _, want := range []string{
		"geobus_cache_hits_total",
		"geobus_cache_misses_total",
		"geobus_cache_sets_total",
		"geobus_cache_deletes_total",
		"geobus_cache_evictions_total",
		"geobus_cache_size",
	} {
		assert.True(t, names[want], "expected metric %s to be registered", want)
	}
}

func TestWithMetrics_DuplicatePrefixFails(t *testing.T) {
	registry := metric.NewRegistry()

	first, err := NewLRU[int](10, WithMetrics[int](registry, "shared"))
	require.NoError(t, err)
	defer first.Close()

	_, err = NewLRU[int](10, WithMetrics[int](registry, "shared"))
	assert.Error(t, err)
}

func TestWithMetrics_DistinctPrefixesCoexist(t *testing.T) {
	registry := metric.NewRegistry()

	a, err := NewLRU[int](10, WithMetrics[int](registry, "geomstore"))
	require.NoError(t, err)
	defer a.Close()

	b, err := NewSimple[int](WithMetrics[int](registry, "consumer-dedupe"))
	require.NoError(t, err)
	defer b.Close()

	_, err = a.Set("k", 1)
	require.NoError(t, err)
	_, err = b.Set("k", 2)
	require.NoError(t, err)
}

func TestWithMetrics_NilRegistryIgnored(t *testing.T) {
	c, err := NewLRU[int](10, WithMetrics[int](nil, "ignored"))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Set("k", 1)
	assert.NoError(t, err)
}
