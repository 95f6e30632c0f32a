package manifold

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenism/geobus/codec"
	pkgerrors "github.com/tokenism/geobus/errors"
	"github.com/tokenism/geobus/hyperbolic"
)

func TestClassify_StrictBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		estimate float64
		want     Class
	}{
		{name: "well below", estimate: -5, want: ClassHyperbolic},
		{name: "just below threshold", estimate: -0.1001, want: ClassHyperbolic},
		{name: "exactly negative threshold", estimate: -0.1, want: ClassEuclidean},
		{name: "zero", estimate: 0, want: ClassEuclidean},
		{name: "exactly positive threshold", estimate: 0.1, want: ClassEuclidean},
		{name: "just above threshold", estimate: 0.10001, want: ClassSpherical},
		{name: "well above", estimate: 2, want: ClassSpherical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.estimate, DefaultThresholds()))
		})
	}
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())

	err := Thresholds{Hyperbolic: 0.5, Spherical: -0.5}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)

	err = Thresholds{Hyperbolic: math.NaN(), Spherical: 0.1}.Validate()
	require.Error(t, err)
}

func TestEstimate_FlatGridIsEuclidean(t *testing.T) {
	var points [][]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			points = append(points, []float64{float64(i), float64(j)})
		}
	}

	estimate, err := Estimate(points, 2)
	require.NoError(t, err)

	// The Euclidean midpoint satisfies Apollonius exactly, so only
	// floating-point noise remains.
	assert.InDelta(t, 0, estimate, 1e-9)
	assert.Equal(t, ClassEuclidean, Classify(estimate, DefaultThresholds()))
}

func TestEstimate_TreeEmbeddingIsHyperbolic(t *testing.T) {
	packet := treePacket(t)

	estimate, err := Estimate(packet.Geometry.Points, packet.Geometry.Dimension)
	require.NoError(t, err)

	assert.Less(t, estimate, -0.1)
	assert.Equal(t, ClassHyperbolic, Classify(estimate, DefaultThresholds()))
}

func TestEstimate_SphereIsSpherical(t *testing.T) {
	points := spherePoints()

	estimate, err := Estimate(points, 3)
	require.NoError(t, err)

	assert.Greater(t, estimate, 0.1)
	assert.Equal(t, ClassSpherical, Classify(estimate, DefaultThresholds()))
}

func TestEstimate_Deterministic(t *testing.T) {
	points := spherePoints()

	first, err := Estimate(points, 3)
	require.NoError(t, err)
	second, err := Estimate(points, 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEstimate_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		points  [][]float64
		dim     int
		wantErr string
	}{
		{
			name:    "too few points",
			points:  [][]float64{{0, 0}, {1, 0}, {0, 1}},
			dim:     2,
			wantErr: "at least 4 points",
		},
		{
			name:    "dimension out of range",
			points:  [][]float64{{0}, {1}, {2}, {3}},
			dim:     1,
			wantErr: "dimension",
		},
		{
			name:    "arity mismatch",
			points:  [][]float64{{0, 0}, {1, 0}, {0, 1}, {1}},
			dim:     2,
			wantErr: "coordinates",
		},
		{
			name:    "non-finite coordinate",
			points:  [][]float64{{0, 0}, {1, 0}, {0, 1}, {math.NaN(), 1}},
			dim:     2,
			wantErr: "non-finite",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Estimate(tt.points, tt.dim)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
			assert.True(t, pkgerrors.IsInvalid(err))
		})
	}
}

func TestInferMetric(t *testing.T) {
	tree := treePacket(t)

	assert.Equal(t, metricPoincare, inferMetric(tree.Geometry.Points).kind)

	sphere := inferMetric(spherePoints())
	assert.Equal(t, metricSpherical, sphere.kind)
	assert.InDelta(t, 1.0, sphere.R, 1e-9)

	grid := [][]float64{{0, 0}, {3, 0}, {0, 3}, {3, 3}}
	assert.Equal(t, metricEuclidean, inferMetric(grid).kind)
}

func TestInspect_HyperbolicPacketMatches(t *testing.T) {
	packet := treePacket(t)

	report, err := Inspect(packet, DefaultThresholds())
	require.NoError(t, err)

	assert.Equal(t, ClassHyperbolic, report.Class)
	assert.Equal(t, ClassHyperbolic, report.Declared)
	assert.Less(t, report.Estimate, -0.1)
	assert.Empty(t, report.Warnings)
}

func TestInspect_MismatchProducesWarningNotError(t *testing.T) {
	// Attribution packets declare flat geometry; give one a hyperbolic
	// point cloud and the report must warn instead of failing.
	tree := treePacket(t)
	packet := codec.NewPacket(codec.KindAttribution, codec.Geometry{
		Dimension: 2,
		Curvature: 0,
		Points:    tree.Geometry.Points,
	}, "detector-test")

	report, err := Inspect(packet, DefaultThresholds())
	require.NoError(t, err)

	assert.Equal(t, ClassHyperbolic, report.Class)
	assert.Equal(t, ClassEuclidean, report.Declared)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "attribution")
	assert.Contains(t, report.Warnings[0], "hyperbolic")
}

func TestInspect_FewPointsFallBackToDeclaredSign(t *testing.T) {
	hyper := codec.NewPacket(codec.KindHyperbolic, codec.Geometry{
		Dimension: 2,
		Curvature: -1,
		Points:    [][]float64{{0, 0}, {0.3, 0.1}, {-0.2, 0.4}},
	}, "detector-test")

	report, err := Inspect(hyper, DefaultThresholds())
	require.NoError(t, err)
	assert.Equal(t, -1.0, report.Estimate)
	assert.Equal(t, ClassHyperbolic, report.Class)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "too few")

	flat := codec.NewPacket(codec.KindAttribution, codec.Geometry{
		Dimension: 2,
		Curvature: 0,
		Points:    [][]float64{{0.2, 0.8}, {0.9, 0.1}},
	}, "detector-test")

	report, err = Inspect(flat, DefaultThresholds())
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.Estimate)
	assert.Equal(t, ClassEuclidean, report.Class)
}

func TestInspect_InvalidPacket(t *testing.T) {
	broken := codec.NewPacket(codec.Kind("mystery"), codec.Geometry{
		Dimension: 2,
		Points:    [][]float64{{0, 0}, {1, 1}, {2, 2}, {3, 3}},
	}, "detector-test")

	_, err := Inspect(broken, DefaultThresholds())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsInvalid(err))
}

func TestInspect_BadThresholds(t *testing.T) {
	_, err := Inspect(treePacket(t), Thresholds{Hyperbolic: 1, Spherical: -1})
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)
}

// treePacket embeds a 63-node binary tree; its point cloud is a canonical
// negatively curved sample.
func treePacket(t *testing.T) codec.Packet {
	t.Helper()
	tree := hyperbolic.Tree{Root: "n1", Children: map[string][]string{}}
	for i := 1; i < 32; i++ {
		tree.Children[fmt.Sprintf("n%d", i)] = []string{
			fmt.Sprintf("n%d", 2*i),
			fmt.Sprintf("n%d", 2*i+1),
		}
	}
	packet, err := hyperbolic.Encode(context.Background(), tree, hyperbolic.DefaultOptions())
	require.NoError(t, err)
	return packet
}

// spherePoints spreads 24 points over the unit sphere away from exact
// antipodal pairs.
func spherePoints() [][]float64 {
	var points [][]float64
	for _, theta := range []float64{0.4, 1.1, 1.8, 2.5} {
		for _, phi := range []float64{0, 1.0, 2.0, 3.0, 4.0, 5.0} {
			points = append(points, []float64{
				math.Sin(theta) * math.Cos(phi),
				math.Sin(theta) * math.Sin(phi),
				math.Cos(theta),
			})
		}
	}
	return points
}
