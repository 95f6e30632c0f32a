// Package dirichlet estimates Dirichlet concentration parameters from
// observed attribution rows and renders the estimates as geometry packets.
//
// Each sample is a probability row over k sources. Fit recovers the
// parameters alpha of a Dirichlet distribution that explains the rows,
// using method-of-moments initialization followed by Minka's fixed-point
// maximum-likelihood iteration. The normalized alpha vector is the
// attribution: the fraction of observed mass credited to each source.
//
// # Estimation
//
// Method of moments seeds the concentration from per-component means and
// variances:
//
//	s = avg_i( m_i*(1-m_i)/v_i - 1 )   alpha_i = s * m_i
//
// The fixed-point update then iterates
//
//	alpha_i' = invdigamma( digamma(sum(alpha)) + mean_j(log x_ji) )
//
// until the largest per-component change drops below Config.Tolerance or
// Config.MaxIterations is reached. Zero entries are floored at
// Config.Floor before taking logs, so degenerate rows cannot poison the
// geometric means.
//
// # Determinism
//
// Fit is deterministic: identical samples and config produce identical
// results. All reductions run in fixed component order.
package dirichlet

import (
	"fmt"
	"math"

	"github.com/tokenism/geobus/errors"
)

// rowSumTolerance bounds how far a sample row may drift from summing to 1
// before it is rejected as malformed.
const rowSumTolerance = 1e-6

// momVarianceFloor is the smallest per-component variance that still
// contributes a method-of-moments term. Components with (near) zero
// variance carry no information about concentration.
const momVarianceFloor = 1e-12

// Config controls the Dirichlet fit.
type Config struct {
	// MaxIterations caps the fixed-point updates after the
	// method-of-moments initialization.
	MaxIterations int `json:"max_iterations"`

	// Tolerance is the convergence threshold: iteration stops once the
	// largest per-component alpha change falls below it.
	Tolerance float64 `json:"tolerance"`

	// Floor replaces zero (and clamps tiny) probabilities before logs are
	// taken, and lower-bounds every alpha estimate. Must be in (0, 1).
	Floor float64 `json:"floor"`
}

// DefaultConfig returns the fit parameters used across the bus: 50
// fixed-point iterations, 1e-10 convergence tolerance, and a 1e-3
// pseudo-count floor.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 50,
		Tolerance:     1e-10,
		Floor:         1e-3,
	}
}

// Validate checks the config for usable values.
func (c Config) Validate() error {
	if c.MaxIterations <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: max_iterations must be positive, got %d", errors.ErrInvalidConfig, c.MaxIterations),
			"dirichlet", "Validate", "config check")
	}
	if c.Tolerance <= 0 || math.IsNaN(c.Tolerance) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: tolerance must be positive, got %v", errors.ErrInvalidConfig, c.Tolerance),
			"dirichlet", "Validate", "config check")
	}
	if c.Floor <= 0 || c.Floor >= 1 || math.IsNaN(c.Floor) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: floor must be in (0, 1), got %v", errors.ErrInvalidConfig, c.Floor),
			"dirichlet", "Validate", "config check")
	}
	return nil
}

// Result holds the fitted Dirichlet parameters and the derived attribution.
type Result struct {
	// Alpha is the fitted concentration parameter per source.
	Alpha []float64

	// Mean is the expected probability per source, alpha_i / sum(alpha).
	Mean []float64

	// Attribution is Mean renormalized so the entries sum to 1 within
	// floating-point rounding. This is the vector published on the bus.
	Attribution []float64

	// Concentration is the total concentration sum(alpha). Values above
	// the source count indicate agreement across samples; values below it
	// indicate sparse, spiky rows.
	Concentration float64

	// Iterations is the number of fixed-point updates performed.
	Iterations int

	// Converged reports whether the largest alpha change dropped below
	// Config.Tolerance before MaxIterations. Degenerate inputs (for
	// example identical rows) may never converge; the estimate is still
	// usable as an attribution because it is renormalized.
	Converged bool
}

// Fit estimates a Dirichlet distribution over the sample rows.
//
// Every row must have the same width k, contain only finite entries in
// [0, 1], and sum to 1 within 1e-6. A single-source problem (k == 1)
// short-circuits to the exact attribution [1.0].
func Fit(samples [][]float64, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateSamples(samples); err != nil {
		return nil, err
	}

	k := len(samples[0])
	if k == 1 {
		return &Result{
			Alpha:         []float64{1},
			Mean:          []float64{1},
			Attribution:   []float64{1},
			Concentration: 1,
			Iterations:    0,
			Converged:     true,
		}, nil
	}

	rows := floorAndRenormalize(samples, cfg.Floor)
	n := len(rows)

	mean := componentMeans(rows, k)
	alpha := momentEstimate(rows, mean, k)
	for i := range alpha {
		if alpha[i] < cfg.Floor {
			alpha[i] = cfg.Floor
		}
	}

	// Sufficient statistics: logPBar_i = mean_j(log x_ji). Rows are
	// floored, so every log is finite.
	logPBar := make([]float64, k)
	for _, row := range rows {
		for i, x := range row {
			logPBar[i] += math.Log(x)
		}
	}
	for i := range logPBar {
		logPBar[i] /= float64(n)
	}

	result := &Result{Alpha: alpha}
	next := make([]float64, k)
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		total := 0.0
		for _, a := range alpha {
			total += a
		}
		psiTotal := digamma(total)

		maxDelta := 0.0
		valid := true
		for i := range alpha {
			a := inverseDigamma(psiTotal + logPBar[i])
			if a < cfg.Floor {
				a = cfg.Floor
			}
			if math.IsNaN(a) || math.IsInf(a, 0) {
				valid = false
				break
			}
			if d := math.Abs(a - alpha[i]); d > maxDelta {
				maxDelta = d
			}
			next[i] = a
		}
		if !valid {
			// Keep the last finite estimate.
			break
		}
		copy(alpha, next)
		result.Iterations = iter + 1
		if maxDelta < cfg.Tolerance {
			result.Converged = true
			break
		}
	}

	total := 0.0
	for _, a := range alpha {
		total += a
	}
	result.Concentration = total

	result.Mean = make([]float64, k)
	for i, a := range alpha {
		result.Mean[i] = a / total
	}

	// Renormalize once more so the published vector sums to 1 up to
	// rounding even after the floor clamps.
	result.Attribution = make([]float64, k)
	sum := 0.0
	for _, m := range result.Mean {
		sum += m
	}
	for i, m := range result.Mean {
		result.Attribution[i] = m / sum
	}

	return result, nil
}

// validateSamples rejects empty input, ragged rows, and entries that are
// not probabilities.
func validateSamples(samples [][]float64) error {
	if len(samples) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("samples must not be empty"),
			"dirichlet", "Fit", "sample validation")
	}
	k := len(samples[0])
	if k == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("sample rows must not be empty"),
			"dirichlet", "Fit", "sample validation")
	}
	for j, row := range samples {
		if len(row) != k {
			return errors.WrapInvalid(
				fmt.Errorf("sample %d has %d entries, want %d", j, len(row), k),
				"dirichlet", "Fit", "sample validation")
		}
		sum := 0.0
		for i, x := range row {
			if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 || x > 1 {
				return errors.WrapInvalid(
					fmt.Errorf("sample %d entry %d is %v, want a probability in [0, 1]", j, i, x),
					"dirichlet", "Fit", "sample validation")
			}
			sum += x
		}
		if math.Abs(sum-1) > rowSumTolerance {
			return errors.WrapInvalid(
				fmt.Errorf("sample %d sums to %v, want 1", j, sum),
				"dirichlet", "Fit", "sample validation")
		}
	}
	return nil
}

// floorAndRenormalize copies the rows, clamps entries below floor up to
// floor, and rescales each row to sum to 1. Inputs are never mutated.
func floorAndRenormalize(samples [][]float64, floor float64) [][]float64 {
	rows := make([][]float64, len(samples))
	for j, src := range samples {
		row := make([]float64, len(src))
		sum := 0.0
		for i, x := range src {
			if x < floor {
				x = floor
			}
			row[i] = x
			sum += x
		}
		for i := range row {
			row[i] /= sum
		}
		rows[j] = row
	}
	return rows
}

// componentMeans returns the per-component mean over the rows.
func componentMeans(rows [][]float64, k int) []float64 {
	mean := make([]float64, k)
	for _, row := range rows {
		for i, x := range row {
			mean[i] += x
		}
	}
	for i := range mean {
		mean[i] /= float64(len(rows))
	}
	return mean
}

// momentEstimate seeds alpha by method of moments. Components whose
// variance is effectively zero are skipped; if no component has usable
// variance (a single row, or identical rows) the concentration falls back
// to k, a flat prior of one pseudo-count per source.
func momentEstimate(rows [][]float64, mean []float64, k int) []float64 {
	variance := make([]float64, k)
	for _, row := range rows {
		for i, x := range row {
			d := x - mean[i]
			variance[i] += d * d
		}
	}
	for i := range variance {
		variance[i] /= float64(len(rows))
	}

	s := 0.0
	terms := 0
	if len(rows) > 1 {
		for i := range mean {
			if variance[i] > momVarianceFloor {
				s += mean[i]*(1-mean[i])/variance[i] - 1
				terms++
			}
		}
	}
	if terms > 0 {
		s /= float64(terms)
	}
	if terms == 0 || s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		s = float64(k)
	}

	alpha := make([]float64, k)
	for i, m := range mean {
		alpha[i] = s * m
	}
	return alpha
}
