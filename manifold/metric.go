package manifold

import (
	"math"

	"github.com/tokenism/geobus/hyperbolic"
)

type metricKind int

const (
	metricEuclidean metricKind = iota
	metricPoincare
	metricSpherical
)

// constNormTolerance decides when a cloud's norms count as constant:
// (max - min) / max below this treats the cloud as lying on a sphere.
const constNormTolerance = 1e-3

// metric measures distances and midpoints under the geometry inferred
// from the coordinates. R is the sphere radius for the spherical case.
type metric struct {
	kind metricKind
	R    float64
}

// inferMetric picks the candidate geometry: everything strictly inside
// the unit ball measures as Poincaré, constant-norm clouds as spherical,
// anything else as Euclidean. The Poincaré test runs first, so a small
// sphere inside the ball reads as a hyperbolic cloud; genuinely spherical
// data lives at radius 1 or above.
func inferMetric(points [][]float64) metric {
	minNorm, maxNorm := math.Inf(1), 0.0
	for _, p := range points {
		n := norm(p)
		if n < minNorm {
			minNorm = n
		}
		if n > maxNorm {
			maxNorm = n
		}
	}
	if maxNorm < 1 {
		return metric{kind: metricPoincare}
	}
	if maxNorm > 0 && (maxNorm-minNorm)/maxNorm < constNormTolerance {
		return metric{kind: metricSpherical, R: (maxNorm + minNorm) / 2}
	}
	return metric{kind: metricEuclidean}
}

func (m metric) distance(a, b []float64) float64 {
	switch m.kind {
	case metricPoincare:
		return hyperbolic.Distance(a, b)
	case metricSpherical:
		cos := dot(a, b) / (norm(a) * norm(b))
		if cos > 1 {
			cos = 1
		}
		if cos < -1 {
			cos = -1
		}
		return m.R * math.Acos(cos)
	default:
		s := 0.0
		for i := range a {
			d := a[i] - b[i]
			s += d * d
		}
		return math.Sqrt(s)
	}
}

// midpoint returns the metric midpoint of b and c. Antipodal spherical
// pairs have no unique midpoint and report ok false.
func (m metric) midpoint(b, c []float64) ([]float64, bool) {
	switch m.kind {
	case metricPoincare:
		u := hyperbolic.MobiusAdd(negate(b), c)
		nu := norm(u)
		if nu < 1e-15 {
			out := make([]float64, len(b))
			copy(out, b)
			return out, true
		}
		r := math.Tanh(math.Atanh(nu) / 2)
		w := make([]float64, len(u))
		for i := range w {
			w[i] = r * u[i] / nu
		}
		return hyperbolic.MobiusAdd(b, w), true
	case metricSpherical:
		s := make([]float64, len(b))
		for i := range s {
			s[i] = b[i] + c[i]
		}
		ns := norm(s)
		if ns < 1e-9 {
			return nil, false
		}
		for i := range s {
			s[i] *= m.R / ns
		}
		return s, true
	default:
		out := make([]float64, len(b))
		for i := range out {
			out[i] = (b[i] + c[i]) / 2
		}
		return out, true
	}
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}

func negate(a []float64) []float64 {
	out := make([]float64, len(a))
	for i := range out {
		out[i] = -a[i]
	}
	return out
}
