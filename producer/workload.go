package producer

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/tokenism/geobus/codec"
	"github.com/tokenism/geobus/config"
	"github.com/tokenism/geobus/dirichlet"
	"github.com/tokenism/geobus/errors"
	"github.com/tokenism/geobus/hyperbolic"
	"github.com/tokenism/geobus/spectral"
)

// Workload names accepted by config.ProducerConfig.Workload.
const (
	WorkloadHyperbolic  = "hyperbolic"
	WorkloadDirichlet   = "dirichlet"
	WorkloadAttribution = "attribution"
	WorkloadMixed       = "mixed"
)

// simplexComponents is the mixture size for dirichlet and attribution
// workloads.
const simplexComponents = 4

// mixedCycle is the kind rotation the mixed workload walks through.
var mixedCycle = []string{WorkloadHyperbolic, WorkloadDirichlet, WorkloadAttribution}

// generator builds synthetic geometry packets for one workload. A fixed
// seed replays the same packet sequence. Not safe for concurrent use; the
// producer drives it from a single goroutine.
type generator struct {
	workload string
	source   string
	points   int
	rng      *rand.Rand
	filter   *spectral.Filter // nil when pre-filtering is disabled
	cursor   int              // mixed rotation position
}

// newGenerator validates the workload selection and seeds the draw
// stream. A zero seed falls back to the wall clock.
func newGenerator(cfg config.ProducerConfig, filter *spectral.Filter) (*generator, error) {
	switch cfg.Workload {
	case WorkloadHyperbolic, WorkloadDirichlet, WorkloadAttribution, WorkloadMixed:
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown workload %q", errors.ErrInvalidConfig, cfg.Workload),
			"producer", "newGenerator", "workload selection")
	}
	if cfg.PointsPerPacket < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: points_per_packet must be at least 1, got %d",
				errors.ErrInvalidConfig, cfg.PointsPerPacket),
			"producer", "newGenerator", "cloud size check")
	}
	if cfg.Source == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: producer source", errors.ErrMissingConfig),
			"producer", "newGenerator", "source check")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &generator{
		workload: cfg.Workload,
		source:   cfg.Source,
		points:   cfg.PointsPerPacket,
		rng:      rand.New(rand.NewSource(seed)),
		filter:   filter,
	}, nil
}

// Generate produces the next packet in the workload. The mixed workload
// rotates hyperbolic, dirichlet, attribution in that order.
func (g *generator) Generate(ctx context.Context) (codec.Packet, error) {
	workload := g.workload
	if workload == WorkloadMixed {
		workload = mixedCycle[g.cursor%len(mixedCycle)]
		g.cursor++
	}

	switch workload {
	case WorkloadHyperbolic:
		return g.hyperbolicPacket(ctx)
	case WorkloadDirichlet:
		return g.simplexPacket(codec.KindDirichlet)
	default:
		return g.simplexPacket(codec.KindAttribution)
	}
}

// hyperbolicPacket embeds a random tree with one node per configured
// point into the Poincare ball.
func (g *generator) hyperbolicPacket(ctx context.Context) (codec.Packet, error) {
	opts := hyperbolic.DefaultOptions()
	opts.Source = g.source
	return hyperbolic.Encode(ctx, g.randomTree(), opts)
}

// randomTree attaches each node to a uniformly drawn earlier node, so the
// node count equals the configured cloud size. The optional pre-filter
// attenuates the attachment signal by rank, which pulls later nodes
// toward the root and yields shallower, star-like shapes.
func (g *generator) randomTree() hyperbolic.Tree {
	signal := make([]float64, g.points)
	for i := range signal {
		signal[i] = g.rng.Float64()
	}
	signal = g.prefilter(signal)

	children := make(map[string][]string, g.points)
	for i := 1; i < g.points; i++ {
		parent := int(signal[i] * float64(i))
		if parent < 0 {
			parent = 0
		}
		if parent >= i {
			parent = i - 1
		}
		pid := nodeID(parent)
		children[pid] = append(children[pid], nodeID(i))
	}

	return hyperbolic.Tree{Root: nodeID(0), Children: children}
}

// simplexPacket fits a Dirichlet over synthetic simplex rows and wraps
// the estimate, or its attribution view, in a packet.
func (g *generator) simplexPacket(kind codec.Kind) (codec.Packet, error) {
	rows := g.simplexRows(g.points, simplexComponents)
	result, err := dirichlet.Fit(rows, dirichlet.DefaultConfig())
	if err != nil {
		return codec.Packet{}, err
	}
	if kind == codec.KindAttribution {
		return dirichlet.AttributionPacket(result, g.source)
	}
	return dirichlet.DirichletPacket(result, g.source)
}

// simplexRows draws n rows of k weighted exponentials normalized onto
// the simplex. The optional pre-filter rank-weights each raw row before
// normalization, tilting mass toward the leading components.
func (g *generator) simplexRows(n, k int) [][]float64 {
	weights := make([]float64, k)
	for j := range weights {
		weights[j] = 0.5 + 2.5*g.rng.Float64()
	}

	rows := make([][]float64, n)
	for i := range rows {
		raw := make([]float64, k)
		for j := range raw {
			raw[j] = weights[j] * g.rng.ExpFloat64()
		}
		raw = g.prefilter(raw)

		sum := 0.0
		for _, v := range raw {
			sum += v
		}
		if sum <= 0 {
			// All mass filtered to zero; fall back to a uniform row.
			for j := range raw {
				raw[j] = 1.0 / float64(k)
			}
		} else {
			for j := range raw {
				raw[j] /= sum
			}
		}
		rows[i] = raw
	}
	return rows
}

// prefilter applies the spectral filter when configured. Raw draws are
// never empty, so Apply cannot fail here; the raw signal is kept on any
// error.
func (g *generator) prefilter(signal []float64) []float64 {
	if g.filter == nil {
		return signal
	}
	out, err := g.filter.Apply(signal)
	if err != nil {
		return signal
	}
	return out
}

func nodeID(i int) string {
	return fmt.Sprintf("n%03d", i)
}
