// Package spectral weights coordinate streams by a truncated zeta series.
// Early stream positions keep most of their magnitude while the n^-s decay
// suppresses the tail, with the truncation depth chosen so the discarded
// zeta tail stays below a configured epsilon.
package spectral

import (
	"fmt"
	"math"

	"github.com/tokenism/geobus/errors"
)

// Mode selects how sub-threshold weights treat their coordinate.
type Mode string

const (
	// ModeZero forces coordinates whose weight falls below the threshold
	// to exactly 0.
	ModeZero Mode = "zero"

	// ModeAttenuate multiplies every coordinate by its weight, keeping
	// whatever magnitude survives.
	ModeAttenuate Mode = "attenuate"
)

// DefaultMaxDepth caps the truncation depth when epsilon asks for a deeper
// series than is worth normalizing over.
const DefaultMaxDepth = 1 << 20

// Options holds the filter configuration.
type Options struct {
	// S is the zeta decay exponent. Must be > 1 or the series diverges.
	S float64

	// Epsilon is the tail bound target: depth N is the smallest N with
	// N^(1-s)/(s-1) < Epsilon. Must be > 0.
	Epsilon float64

	// Threshold is the weight cutoff for ModeZero. Weights strictly below
	// it zero their coordinate.
	Threshold float64

	// Mode selects zero or attenuate behavior.
	Mode Mode

	// MaxDepth caps the truncation depth regardless of Epsilon.
	MaxDepth int
}

// DefaultOptions returns the standard filter configuration.
func DefaultOptions() Options {
	return Options{
		S:         2.0,
		Epsilon:   1e-6,
		Threshold: 1e-6,
		Mode:      ModeAttenuate,
		MaxDepth:  DefaultMaxDepth,
	}
}

// Validate checks the options, returning Invalid-class errors.
func (o Options) Validate() error {
	if o.S <= 1 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: s must be > 1, got %g", errors.ErrInvalidConfig, o.S),
			"spectral", "Validate", "exponent check")
	}
	if o.Epsilon <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: epsilon must be > 0, got %g", errors.ErrInvalidConfig, o.Epsilon),
			"spectral", "Validate", "epsilon check")
	}
	if o.Threshold < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: threshold must be >= 0, got %g", errors.ErrInvalidConfig, o.Threshold),
			"spectral", "Validate", "threshold check")
	}
	switch o.Mode {
	case ModeZero, ModeAttenuate:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown mode %q", errors.ErrInvalidConfig, o.Mode),
			"spectral", "Validate", "mode check")
	}
	if o.MaxDepth <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: max depth must be > 0, got %d", errors.ErrInvalidConfig, o.MaxDepth),
			"spectral", "Validate", "depth check")
	}
	return nil
}

// Filter applies truncated zeta weights to coordinate streams.
//
// The weight for 1-based rank n is n^-s / Z_N(s) with Z_N(s) the partial
// zeta sum to depth N; ranks past N weigh exactly 0. Both the normalizer
// and Apply use a fixed ascending summation order with no parallel
// reduction, so outputs are bit-for-bit reproducible across runs for
// identical inputs and options.
type Filter struct {
	opts  Options
	depth int
	norm  float64 // Z_N(s)
}

// New builds a filter from the options. The normalizer Z_N(s) is summed
// once here; Apply only multiplies.
func New(opts Options) (*Filter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	depth := depthFor(opts.S, opts.Epsilon, opts.MaxDepth)

	norm := 0.0
	for n := 1; n <= depth; n++ {
		norm += math.Pow(float64(n), -opts.S)
	}

	return &Filter{
		opts:  opts,
		depth: depth,
		norm:  norm,
	}, nil
}

// tailBound is the integral bound on the zeta tail past n:
// sum_{k>n} k^-s < n^(1-s)/(s-1).
func tailBound(n, s float64) float64 {
	return math.Pow(n, 1-s) / (s - 1)
}

// depthFor returns the smallest N with tailBound(N) < epsilon, capped at
// maxDepth. The closed-form start N = (epsilon*(s-1))^(1/(1-s)) lands
// within one step of the boundary; the loops correct for floating point.
func depthFor(s, epsilon float64, maxDepth int) int {
	start := math.Pow(epsilon*(s-1), 1/(1-s))
	if math.IsInf(start, 0) || start > float64(maxDepth) {
		return maxDepth
	}
	n := int(start)
	if n < 1 {
		n = 1
	}

	for n > 1 && tailBound(float64(n-1), s) < epsilon {
		n--
	}
	for tailBound(float64(n), s) >= epsilon {
		n++
		if n >= maxDepth {
			return maxDepth
		}
	}
	return n
}

// Depth returns the truncation depth N.
func (f *Filter) Depth() int {
	return f.depth
}

// Weight returns the weight for 1-based rank n. Ranks outside [1, Depth]
// weigh exactly 0.
func (f *Filter) Weight(n int) float64 {
	if n < 1 || n > f.depth {
		return 0
	}
	return math.Pow(float64(n), -f.opts.S) / f.norm
}

// Apply weights the signal by stream position: output[i] uses the weight
// of rank i+1. In ModeZero, coordinates whose weight is strictly below the
// threshold come back exactly 0; in ModeAttenuate every coordinate is
// multiplied through. Positions past the truncation depth are 0 in both
// modes. The input is never modified.
func (f *Filter) Apply(signal []float64) ([]float64, error) {
	if len(signal) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("signal must not be empty"),
			"spectral", "Apply", "signal check")
	}

	out := make([]float64, len(signal))
	for i, x := range signal {
		w := f.Weight(i + 1)
		if f.opts.Mode == ModeZero && w < f.opts.Threshold {
			out[i] = 0
			continue
		}
		out[i] = x * w
	}
	return out, nil
}
