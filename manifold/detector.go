// Package manifold classifies the curvature regime of a point cloud and
// cross-checks it against the geometry kind a packet declares.
//
// The estimator is a triangle-defect test. For each sampled triangle
// (A, B, C) it measures the distance from A to the metric midpoint of BC
// and compares the square against the Euclidean median prediction
// (Apollonius):
//
//	m_E^2 = (2 d(A,B)^2 + 2 d(A,C)^2 - d(B,C)^2) / 4
//
// Geodesic triangles are thinner than their Euclidean comparison triangle
// in negative curvature and fatter in positive curvature, so the sign of
// the normalized defect (observed^2 - predicted^2, scaled by the squared
// mean side) separates the three regimes. The declared kind is treated as
// provenance: a disagreement between declaration and estimate is reported
// as a warning, never an error.
package manifold

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/tokenism/geobus/codec"
	"github.com/tokenism/geobus/errors"
)

// Class labels a curvature regime.
type Class string

const (
	ClassHyperbolic Class = "hyperbolic"
	ClassSpherical  Class = "spherical"
	ClassEuclidean  Class = "euclidean"
)

const (
	// minPoints is the smallest cloud the defect estimator works on;
	// below it Inspect falls back to the declared curvature sign.
	minPoints = 4

	// exhaustiveLimit is the largest cloud for which every C(n,3)
	// triangle is measured. Larger clouds are sampled.
	exhaustiveLimit = 16

	// maxTriangles bounds the sample size for large clouds.
	maxTriangles = 200

	// degenerateSide skips triangles whose mean side collapses to zero.
	degenerateSide = 1e-9
)

// Thresholds holds the classification cut points. Both comparisons are
// strict: an estimate exactly on a threshold classifies as euclidean.
type Thresholds struct {
	// Hyperbolic is the cut below which an estimate is hyperbolic.
	Hyperbolic float64 `json:"hyperbolic"`

	// Spherical is the cut above which an estimate is spherical.
	Spherical float64 `json:"spherical"`
}

// DefaultThresholds returns the cut points used across the bus: -0.1 and
// +0.1.
func DefaultThresholds() Thresholds {
	return Thresholds{Hyperbolic: -0.1, Spherical: 0.1}
}

// Validate checks that the cut points delimit a euclidean band.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.Hyperbolic) || math.IsNaN(t.Spherical) || t.Hyperbolic > t.Spherical {
		return errors.WrapInvalid(
			fmt.Errorf("%w: thresholds must satisfy hyperbolic <= spherical, got %v and %v",
				errors.ErrInvalidConfig, t.Hyperbolic, t.Spherical),
			"manifold", "Validate", "threshold check")
	}
	return nil
}

// Classify maps a curvature estimate to its class. The comparisons are
// strict, so estimates exactly on a threshold stay euclidean.
func Classify(estimate float64, t Thresholds) Class {
	switch {
	case estimate < t.Hyperbolic:
		return ClassHyperbolic
	case estimate > t.Spherical:
		return ClassSpherical
	default:
		return ClassEuclidean
	}
}

// Report is the result of inspecting a packet.
type Report struct {
	// Estimate is the normalized triangle defect averaged over samples,
	// or the declared curvature sign when the cloud is too small.
	Estimate float64

	// Class is the regime the estimate classifies into.
	Class Class

	// Declared is the regime implied by the packet kind.
	Declared Class

	// Warnings lists non-fatal findings, such as a declared kind that
	// disagrees with the estimate.
	Warnings []string
}

// Inspect estimates the curvature class of a packet's geometry and
// compares it with the declared kind.
func Inspect(packet codec.Packet, thresholds Thresholds) (Report, error) {
	if err := thresholds.Validate(); err != nil {
		return Report{}, err
	}
	if err := packet.Validate(); err != nil {
		return Report{}, err
	}

	declared := declaredClass(packet.Kind)
	report := Report{Declared: declared}

	points := packet.Geometry.Points
	if len(points) < minPoints {
		report.Estimate = curvatureSign(packet.Geometry.Curvature)
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d points are too few for a defect estimate; using declared curvature sign", len(points)))
	} else {
		estimate, err := Estimate(points, packet.Geometry.Dimension)
		if err != nil {
			return Report{}, err
		}
		report.Estimate = estimate
	}

	report.Class = Classify(report.Estimate, thresholds)
	if report.Class != declared {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("declared kind %q implies %s geometry but the estimate %.4f classifies as %s",
				packet.Kind, declared, report.Estimate, report.Class))
	}
	return report, nil
}

// Estimate returns the normalized triangle defect of the cloud: negative
// in hyperbolic geometry, positive in spherical, near zero when flat.
//
// The metric is inferred from the coordinates: clouds entirely inside the
// unit ball measure with the Poincaré metric, clouds of constant norm with
// the great-circle metric, anything else with the Euclidean metric.
// Sampling is deterministic: all triangles for small clouds, a fixed-seed
// sample for large ones.
func Estimate(points [][]float64, dim int) (float64, error) {
	if dim != 2 && dim != 3 {
		return 0, errors.WrapInvalid(
			fmt.Errorf("dimension must be 2 or 3, got %d", dim),
			"manifold", "Estimate", "input check")
	}
	if len(points) < minPoints {
		return 0, errors.WrapInvalid(
			fmt.Errorf("need at least %d points, got %d", minPoints, len(points)),
			"manifold", "Estimate", "input check")
	}
	for i, p := range points {
		if len(p) != dim {
			return 0, errors.WrapInvalid(
				fmt.Errorf("point %d has %d coordinates, want %d", i, len(p), dim),
				"manifold", "Estimate", "input check")
		}
		for _, x := range p {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return 0, errors.WrapInvalid(
					fmt.Errorf("point %d has a non-finite coordinate", i),
					"manifold", "Estimate", "input check")
			}
		}
	}

	m := inferMetric(points)
	sum := 0.0
	count := 0
	for _, tri := range sampleTriangles(len(points)) {
		defect, ok := triangleDefect(m, points[tri[0]], points[tri[1]], points[tri[2]])
		if !ok {
			continue
		}
		sum += defect
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}

// triangleDefect measures one triangle: the squared distance from a to the
// metric midpoint of (b, c) minus the Euclidean median prediction,
// normalized by the squared mean side. Degenerate triangles report ok
// false.
func triangleDefect(m metric, a, b, c []float64) (float64, bool) {
	dab := m.distance(a, b)
	dac := m.distance(a, c)
	dbc := m.distance(b, c)
	scale := (dab + dac + dbc) / 3
	if scale < degenerateSide {
		return 0, false
	}
	mid, ok := m.midpoint(b, c)
	if !ok {
		return 0, false
	}
	dam := m.distance(a, mid)
	apollonius := (2*dab*dab + 2*dac*dac - dbc*dbc) / 4
	return (dam*dam - apollonius) / (scale * scale), true
}

// sampleTriangles returns the index triples to measure. Clouds up to
// exhaustiveLimit enumerate every combination; larger clouds draw a
// fixed-seed sample so repeated runs see identical triangles.
func sampleTriangles(n int) [][3]int {
	if n <= exhaustiveLimit {
		tris := make([][3]int, 0, n*(n-1)*(n-2)/6)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				for k := j + 1; k < n; k++ {
					tris = append(tris, [3]int{i, j, k})
				}
			}
		}
		return tris
	}

	rng := rand.New(rand.NewSource(1))
	tris := make([][3]int, 0, maxTriangles)
	for len(tris) < maxTriangles {
		i, j, k := rng.Intn(n), rng.Intn(n), rng.Intn(n)
		if i == j || j == k || i == k {
			continue
		}
		tris = append(tris, [3]int{i, j, k})
	}
	return tris
}

func declaredClass(kind codec.Kind) Class {
	if kind == codec.KindHyperbolic {
		return ClassHyperbolic
	}
	// Attribution and dirichlet geometries are flat.
	return ClassEuclidean
}

func curvatureSign(curvature float64) float64 {
	switch {
	case curvature < 0:
		return -1
	case curvature > 0:
		return 1
	default:
		return 0
	}
}
