package hyperbolic

import "math"

// MobiusAdd combines two points of the open unit ball using Möbius
// addition, the hyperbolic analogue of translating b by a. Both points
// must have the same length and norm strictly below 1.
//
// Formula: a (+) b = ((1 + 2<a,b> + |b|^2)a + (1 - |a|^2)b) /
// (1 + 2<a,b> + |a|^2 |b|^2)
//
// The denominator is bounded below by (1 - |a||b|)^2, so the operation is
// well defined everywhere inside the ball.
func MobiusAdd(a, b []float64) []float64 {
	ab := dot(a, b)
	na2 := dot(a, a)
	nb2 := dot(b, b)
	denom := 1 + 2*ab + na2*nb2
	ca := (1 + 2*ab + nb2) / denom
	cb := (1 - na2) / denom

	out := make([]float64, len(a))
	for i := range out {
		out[i] = ca*a[i] + cb*b[i]
	}
	return out
}

// ExpMap maps a tangent vector v at base point x onto the ball by
// following the geodesic from x in direction v. The hyperbolic length
// traveled is the Riemannian norm of the tangent, lambda_x * |v| with
// lambda_x = 2/(1 - |x|^2); from the origin that is 2|v|. A zero tangent
// returns a copy of x.
//
// Formula: exp_x(v) = x (+) (tanh(|v| / (1 - |x|^2)) * v/|v|)
//
// Tangents long enough to saturate tanh in floating point would land the
// step on the boundary itself, so the step norm is capped at the boundary
// guard. A finite tangent therefore never produces a point with norm 1.
func ExpMap(x, v []float64) []float64 {
	nv := math.Sqrt(dot(v, v))
	if nv == 0 {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}
	r := math.Tanh(nv / (1 - dot(x, x)))
	if r >= boundaryGuard {
		r = boundaryGuard
	}
	scale := r / nv
	step := make([]float64, len(v))
	for i := range step {
		step[i] = scale * v[i]
	}
	return MobiusAdd(x, step)
}

// Distance returns the Poincaré metric distance between two points of the
// open unit ball (curvature -1).
//
// Formula: d(a, b) = 2 atanh(|(-a) (+) b|)
//
// The distance from the origin reduces to 2 atanh(|b|), so norms grow
// toward 1 as points move away from the center.
func Distance(a, b []float64) float64 {
	m := norm(MobiusAdd(negate(a), b))
	if m >= 1 {
		m = 1 - 1e-15
	}
	return 2 * math.Atanh(m)
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
