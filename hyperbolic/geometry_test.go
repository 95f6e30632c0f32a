package hyperbolic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMobiusAdd_OriginIsIdentity(t *testing.T) {
	b := []float64{-0.2, 0.5}

	assert.Equal(t, b, MobiusAdd([]float64{0, 0}, b))
	assert.Equal(t, b, MobiusAdd(b, []float64{0, 0}))
}

func TestMobiusAdd_LeftCancellation(t *testing.T) {
	// a (+) ((-a) (+) b) == b
	a := []float64{0.3, 0.4}
	b := []float64{-0.2, 0.5}

	got := MobiusAdd(a, MobiusAdd(negate(a), b))
	require.Len(t, got, 2)
	assert.InDelta(t, b[0], got[0], 1e-12)
	assert.InDelta(t, b[1], got[1], 1e-12)
}

func TestMobiusAdd_InverseCancels(t *testing.T) {
	a := []float64{0.7, -0.2}

	got := MobiusAdd(negate(a), a)
	for i, v := range got {
		assert.InDelta(t, 0, v, 1e-15, "coordinate %d", i)
	}
}

func TestMobiusAdd_StaysInBall(t *testing.T) {
	points := [][]float64{
		{0.9, 0.43},       // norm ~0.997
		{-0.99, 0},        //
		{0.7, -0.7},       // norm ~0.99
		{0.0001, -0.9998}, //
	}
	for _, a := range points {
		for _, b := range points {
			got := MobiusAdd(a, b)
			assert.Less(t, norm(got), 1.0, "a=%v b=%v", a, b)
		}
	}
}

func TestDistance_FromOrigin(t *testing.T) {
	// d(0, x) = 2 atanh(|x|)
	x := []float64{0.6, 0}
	assert.InDelta(t, 2*math.Atanh(0.6), Distance([]float64{0, 0}, x), 1e-12)
}

func TestDistance_Symmetric(t *testing.T) {
	a := []float64{0.1, 0.2}
	b := []float64{-0.5, 0.3}
	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-12)
}

func TestDistance_CoincidentPointsAreZero(t *testing.T) {
	a := []float64{0.25, -0.4}
	assert.InDelta(t, 0, Distance(a, a), 1e-12)
}

func TestDistance_TriangleInequality(t *testing.T) {
	a := []float64{0.1, 0.2}
	b := []float64{-0.5, 0.3}
	c := []float64{0.4, -0.6}

	assert.LessOrEqual(t, Distance(a, c), Distance(a, b)+Distance(b, c)+1e-12)
}

func TestDistance_TranslationInvariant(t *testing.T) {
	// Möbius translation is an isometry: d(t(+)a, t(+)b) == d(a, b).
	trans := []float64{0.35, -0.15}
	a := []float64{0.1, 0.2}
	b := []float64{-0.5, 0.3}

	want := Distance(a, b)
	got := Distance(MobiusAdd(trans, a), MobiusAdd(trans, b))
	assert.InDelta(t, want, got, 1e-9)
}

func TestExpMap_ZeroTangent(t *testing.T) {
	x := []float64{0.3, -0.1}

	got := ExpMap(x, []float64{0, 0})
	assert.Equal(t, x, got)

	// The result is a copy, not an alias.
	got[0] = 0.9
	assert.Equal(t, 0.3, x[0])
}

func TestExpMap_RadialFromOrigin(t *testing.T) {
	// exp_0(v) = tanh(|v|) * v/|v|
	v := []float64{0.5, 0}
	got := ExpMap([]float64{0, 0}, v)
	assert.InDelta(t, math.Tanh(0.5), got[0], 1e-15)
	assert.InDelta(t, 0, got[1], 1e-15)
}

func TestExpMap_TravelsRiemannianLength(t *testing.T) {
	// d(x, exp_x(v)) = 2|v| / (1 - |x|^2)
	tests := []struct {
		name string
		x    []float64
		v    []float64
	}{
		{name: "origin", x: []float64{0, 0}, v: []float64{0.3, -0.4}},
		{name: "off center", x: []float64{0.2, 0.1}, v: []float64{-0.1, 0.25}},
		{name: "near boundary", x: []float64{0.8, 0.3}, v: []float64{0.05, 0.02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := 2 * norm(tt.v) / (1 - dot(tt.x, tt.x))
			got := Distance(tt.x, ExpMap(tt.x, tt.v))
			assert.InDelta(t, want, got, 1e-9)
		})
	}
}

func TestExpMap_StaysInBall(t *testing.T) {
	// Even enormous tangents saturate inside the ball.
	got := ExpMap([]float64{0.5, 0.5}, []float64{100, -40})
	assert.Less(t, norm(got), 1.0)
}
