package dirichlet

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigamma_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		want float64
	}{
		// psi(1) = -gamma
		{name: "one", x: 1, want: -0.5772156649015329},
		// psi(1/2) = -gamma - 2 ln 2
		{name: "half", x: 0.5, want: -1.9635100260214235},
		// psi(2) = 1 - gamma
		{name: "two", x: 2, want: 0.4227843350984671},
		// psi(10) = H_9 - gamma
		{name: "ten", x: 10, want: 2.2517525890667211},
		// psi(100) = H_99 - gamma
		{name: "hundred", x: 100, want: 4.600161852738087},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, digamma(tt.x), 1e-8)
		})
	}
}

func TestDigamma_Recurrence(t *testing.T) {
	// psi(x+1) = psi(x) + 1/x
	for _, x := range []float64{0.25, 0.5, 1, 3.7, 12} {
		assert.InDelta(t, digamma(x)+1/x, digamma(x+1), 1e-10, "x=%v", x)
	}
}

func TestTrigamma_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		want float64
	}{
		// psi'(1) = pi^2/6
		{name: "one", x: 1, want: 1.6449340668482264},
		// psi'(1/2) = pi^2/2
		{name: "half", x: 0.5, want: 4.934802200544679},
		// psi'(2) = pi^2/6 - 1
		{name: "two", x: 2, want: 0.6449340668482264},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, trigamma(tt.x), 1e-8)
		})
	}
}

func TestTrigamma_Recurrence(t *testing.T) {
	// psi'(x+1) = psi'(x) - 1/x^2
	for _, x := range []float64{0.25, 0.5, 1, 3.7, 12} {
		assert.InDelta(t, trigamma(x)-1/(x*x), trigamma(x+1), 1e-10, "x=%v", x)
	}
}

func TestInverseDigamma_RoundTrip(t *testing.T) {
	for _, x := range []float64{0.1, 0.5, 1, 2, 10, 100} {
		t.Run(fmt.Sprintf("x=%v", x), func(t *testing.T) {
			got := inverseDigamma(digamma(x))
			assert.InEpsilon(t, x, got, 1e-6)
		})
	}
}

func TestInverseDigamma_StaysPositive(t *testing.T) {
	// Very negative arguments map to tiny but positive concentrations.
	for _, y := range []float64{-1, -10, -100, -1000} {
		got := inverseDigamma(y)
		assert.Greater(t, got, 0.0, "y=%v", y)
		assert.False(t, math.IsNaN(got), "y=%v", y)
	}
}
