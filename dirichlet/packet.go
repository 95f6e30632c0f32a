package dirichlet

import (
	"fmt"

	"github.com/tokenism/geobus/codec"
	"github.com/tokenism/geobus/errors"
)

// DirichletPacket renders a fit result as a dirichlet-kind packet. Each
// point row is (alpha_i, mean_i) so consumers recover both the fitted
// concentration and the expected attribution per source. The geometry is
// flat: dimension 2, curvature 0.
func DirichletPacket(r *Result, source string, opts ...codec.Option) (codec.Packet, error) {
	if err := checkResult(r, "DirichletPacket"); err != nil {
		return codec.Packet{}, err
	}
	points := make([][]float64, len(r.Alpha))
	for i, a := range r.Alpha {
		points[i] = []float64{a, r.Mean[i]}
	}
	return codec.NewPacket(codec.KindDirichlet, codec.Geometry{
		Dimension: 2,
		Curvature: 0,
		Points:    points,
	}, source, opts...), nil
}

// AttributionPacket renders only the normalized attribution, without the
// fitted concentration. Each point row is ((i+0.5)/k, attribution_i): the
// first coordinate spreads the k sources evenly over (0, 1) so the packet
// plots directly as a bar chart.
func AttributionPacket(r *Result, source string, opts ...codec.Option) (codec.Packet, error) {
	if err := checkResult(r, "AttributionPacket"); err != nil {
		return codec.Packet{}, err
	}
	k := len(r.Attribution)
	points := make([][]float64, k)
	for i, a := range r.Attribution {
		points[i] = []float64{(float64(i) + 0.5) / float64(k), a}
	}
	return codec.NewPacket(codec.KindAttribution, codec.Geometry{
		Dimension: 2,
		Curvature: 0,
		Points:    points,
	}, source, opts...), nil
}

func checkResult(r *Result, method string) error {
	if r == nil {
		return errors.WrapInvalid(
			fmt.Errorf("result must not be nil"),
			"dirichlet", method, "result check")
	}
	if len(r.Alpha) == 0 || len(r.Alpha) != len(r.Mean) || len(r.Alpha) != len(r.Attribution) {
		return errors.WrapInvalid(
			fmt.Errorf("result vectors are inconsistent: alpha %d, mean %d, attribution %d",
				len(r.Alpha), len(r.Mean), len(r.Attribution)),
			"dirichlet", method, "result check")
	}
	return nil
}
