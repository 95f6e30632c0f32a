package dirichlet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenism/geobus/codec"
	pkgerrors "github.com/tokenism/geobus/errors"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "defaults", cfg: DefaultConfig()},
		{name: "zero iterations", cfg: Config{MaxIterations: 0, Tolerance: 1e-10, Floor: 1e-3}, wantErr: "max_iterations"},
		{name: "negative tolerance", cfg: Config{MaxIterations: 50, Tolerance: -1, Floor: 1e-3}, wantErr: "tolerance"},
		{name: "nan tolerance", cfg: Config{MaxIterations: 50, Tolerance: math.NaN(), Floor: 1e-3}, wantErr: "tolerance"},
		{name: "zero floor", cfg: Config{MaxIterations: 50, Tolerance: 1e-10, Floor: 0}, wantErr: "floor"},
		{name: "floor at one", cfg: Config{MaxIterations: 50, Tolerance: 1e-10, Floor: 1}, wantErr: "floor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
			assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)
			assert.True(t, pkgerrors.IsInvalid(err))
		})
	}
}

func TestFit_ValidatesSamples(t *testing.T) {
	tests := []struct {
		name    string
		samples [][]float64
		wantErr string
	}{
		{name: "empty", samples: nil, wantErr: "must not be empty"},
		{name: "empty row", samples: [][]float64{{}}, wantErr: "rows must not be empty"},
		{name: "ragged rows", samples: [][]float64{{0.5, 0.5}, {1}}, wantErr: "has 1 entries, want 2"},
		{name: "negative entry", samples: [][]float64{{1.2, -0.2}}, wantErr: "probability"},
		{name: "entry above one", samples: [][]float64{{1.5, 0.5}}, wantErr: "probability"},
		{name: "nan entry", samples: [][]float64{{math.NaN(), 1}}, wantErr: "probability"},
		{name: "row does not sum to one", samples: [][]float64{{0.5, 0.4}}, wantErr: "sums to"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(tt.samples, DefaultConfig())
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
			assert.True(t, pkgerrors.IsInvalid(err))
		})
	}
}

func TestFit_SingleSource(t *testing.T) {
	result, err := Fit([][]float64{{1}, {1}, {1}}, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []float64{1}, result.Attribution)
	assert.Equal(t, []float64{1}, result.Mean)
	assert.Equal(t, 0, result.Iterations)
	assert.True(t, result.Converged)
	assert.Equal(t, 1.0, result.Concentration)
}

func TestFit_UniformRows(t *testing.T) {
	samples := [][]float64{
		{0.5, 0.5},
		{0.5, 0.5},
		{0.5, 0.5},
		{0.5, 0.5},
	}

	result, err := Fit(samples, DefaultConfig())
	require.NoError(t, err)

	// Symmetric input keeps the components identical through every
	// update, so the attribution splits exactly in half. Identical rows
	// have zero variance and the likelihood has no finite optimum, so
	// convergence is not asserted.
	assert.InDelta(t, 0.5, result.Attribution[0], 1e-12)
	assert.InDelta(t, 0.5, result.Attribution[1], 1e-12)
	assertAttributionSumsToOne(t, result)
}

func TestFit_RecoversSkewedMean(t *testing.T) {
	// Scattered rows around mean (0.5, 0.3, 0.2). Moderate concentration
	// keeps the fixed point fast; tightly clustered rows would push the
	// concentration so high that convergence takes thousands of updates.
	samples := [][]float64{
		{0.85, 0.10, 0.05},
		{0.20, 0.55, 0.25},
		{0.45, 0.30, 0.25},
		{0.60, 0.15, 0.25},
		{0.30, 0.45, 0.25},
		{0.60, 0.25, 0.15},
	}
	cfg := Config{MaxIterations: 1000, Tolerance: 1e-8, Floor: 1e-3}

	result, err := Fit(samples, cfg)
	require.NoError(t, err)

	assert.True(t, result.Converged, "expected convergence, stopped after %d iterations", result.Iterations)
	assert.GreaterOrEqual(t, result.Iterations, 1)

	wantMean := []float64{0.5, 0.3, 0.2}
	for i, want := range wantMean {
		assert.InDelta(t, want, result.Attribution[i], 0.05, "component %d", i)
	}
	assertAttributionSumsToOne(t, result)

	// Rows cluster tighter than a flat Dirichlet would produce.
	assert.Greater(t, result.Concentration, float64(len(samples[0])))
	for i, a := range result.Alpha {
		assert.GreaterOrEqual(t, a, cfg.Floor, "alpha %d", i)
	}
}

func TestFit_FloorsZeroEntries(t *testing.T) {
	samples := [][]float64{
		{1, 0},
		{0, 1},
	}

	result, err := Fit(samples, DefaultConfig())
	require.NoError(t, err)

	// The floored rows are mirror images, so the attribution is an even
	// split and every value stays finite despite the zeros.
	assert.InDelta(t, 0.5, result.Attribution[0], 1e-12)
	assert.InDelta(t, 0.5, result.Attribution[1], 1e-12)
	for i, a := range result.Alpha {
		assert.False(t, math.IsNaN(a) || math.IsInf(a, 0), "alpha %d", i)
		assert.GreaterOrEqual(t, a, DefaultConfig().Floor, "alpha %d", i)
	}
	assertAttributionSumsToOne(t, result)
}

func TestFit_Deterministic(t *testing.T) {
	samples := [][]float64{
		{0.6, 0.3, 0.1},
		{0.5, 0.35, 0.15},
		{0.55, 0.32, 0.13},
	}

	first, err := Fit(samples, DefaultConfig())
	require.NoError(t, err)
	second, err := Fit(samples, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFit_DoesNotMutateSamples(t *testing.T) {
	samples := [][]float64{
		{1, 0},
		{0.3, 0.7},
	}
	original := [][]float64{
		{1, 0},
		{0.3, 0.7},
	}

	_, err := Fit(samples, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, original, samples)
}

func TestDirichletPacket(t *testing.T) {
	result, err := Fit([][]float64{
		{0.72, 0.19, 0.09},
		{0.68, 0.21, 0.11},
	}, DefaultConfig())
	require.NoError(t, err)

	packet, err := DirichletPacket(result, "attribution-service")
	require.NoError(t, err)
	require.NoError(t, packet.Validate())

	assert.Equal(t, codec.KindDirichlet, packet.Kind)
	assert.Equal(t, "attribution-service", packet.Source)
	assert.Equal(t, 2, packet.Geometry.Dimension)
	assert.Equal(t, 0.0, packet.Geometry.Curvature)
	require.Len(t, packet.Geometry.Points, len(result.Alpha))
	for i, point := range packet.Geometry.Points {
		assert.Equal(t, []float64{result.Alpha[i], result.Mean[i]}, point, "row %d", i)
	}
}

func TestAttributionPacket(t *testing.T) {
	result, err := Fit([][]float64{
		{0.6, 0.3, 0.1},
		{0.5, 0.35, 0.15},
	}, DefaultConfig())
	require.NoError(t, err)

	packet, err := AttributionPacket(result, "attribution-service")
	require.NoError(t, err)
	require.NoError(t, packet.Validate())

	assert.Equal(t, codec.KindAttribution, packet.Kind)
	k := len(result.Attribution)
	require.Len(t, packet.Geometry.Points, k)
	for i, point := range packet.Geometry.Points {
		require.Len(t, point, 2)
		assert.Equal(t, (float64(i)+0.5)/float64(k), point[0], "row %d abscissa", i)
		assert.Equal(t, result.Attribution[i], point[1], "row %d attribution", i)
	}
}

func TestPacketBuilders_RejectBadResults(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
	}{
		{name: "nil result", result: nil},
		{name: "empty vectors", result: &Result{}},
		{name: "inconsistent lengths", result: &Result{
			Alpha:       []float64{1, 2},
			Mean:        []float64{0.3},
			Attribution: []float64{0.3, 0.7},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DirichletPacket(tt.result, "svc")
			require.Error(t, err)
			assert.True(t, pkgerrors.IsInvalid(err))

			_, err = AttributionPacket(tt.result, "svc")
			require.Error(t, err)
			assert.True(t, pkgerrors.IsInvalid(err))
		})
	}
}

func assertAttributionSumsToOne(t *testing.T, result *Result) {
	t.Helper()
	sum := 0.0
	for _, a := range result.Attribution {
		sum += a
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}
