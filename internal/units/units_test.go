package units_test

import (
	"math"
	"testing"

	"codeberg.org/mutker/swervectl/internal/units"
	"github.com/stretchr/testify/assert"
)

const tolerance = 1e-9

func TestWrapRadians(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero", 0, 0},
		{"pi stays", math.Pi, math.Pi},
		{"minus pi flips", -math.Pi, math.Pi},
		{"just over pi", math.Pi + 0.1, -math.Pi + 0.1},
		{"full turn", 2 * math.Pi, 0},
		{"many turns", 7*math.Pi + 0.5, -math.Pi + 0.5},
		{"negative", -3 * math.Pi / 2, math.Pi / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, units.WrapRadians(tt.in), tolerance)
		})
	}
}

func TestMinusAppliesEncoderOffset(t *testing.T) {
	got := units.FromRotations(0.30).Minus(units.FromRotations(0.25))

	assert.InDelta(t, 0.05*2*math.Pi, got.Radians(), tolerance)
	assert.InDelta(t, 0.05, got.Rotations(), tolerance)
}

func TestMinusWrapsAcrossBoundary(t *testing.T) {
	got := units.FromRotations(0.05).Minus(units.FromRotations(0.90))

	assert.InDelta(t, 0.15*2*math.Pi, got.Radians(), tolerance)
}

func TestNearestContinuousTakesShortPath(t *testing.T) {
	current := units.RotationsToRadians(3) + 3.0
	target := units.FromRadians(-3.0)

	got := units.NearestContinuous(current, target)

	assert.LessOrEqual(t, math.Abs(got-current), math.Pi)
	assert.InDelta(t, 0, units.WrapRadians(got-target.Radians()), tolerance)
}

func TestIsFinite(t *testing.T) {
	assert.True(t, units.FromRadians(1).IsFinite())
	assert.False(t, units.FromRadians(math.NaN()).IsFinite())
	assert.False(t, units.FromRadians(math.Inf(-1)).IsFinite())
}
