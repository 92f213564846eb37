// Package units holds the angle type and unit conversions shared by the
// device and module layers.
package units

import "math"

const twoPi = 2 * math.Pi

// RotationsToRadians converts mechanism rotations to radians.
func RotationsToRadians(rotations float64) float64 {
	return rotations * twoPi
}

// RadiansToRotations converts radians to mechanism rotations.
func RadiansToRotations(radians float64) float64 {
	return radians / twoPi
}

// Rotation is a planar angle. The stored value is kept as given; Minus and
// Normalized wrap into (-π, π].
type Rotation struct {
	radians float64
}

func FromRadians(radians float64) Rotation {
	return Rotation{radians: radians}
}

func FromRotations(rotations float64) Rotation {
	return Rotation{radians: RotationsToRadians(rotations)}
}

func (r Rotation) Radians() float64 {
	return r.radians
}

func (r Rotation) Rotations() float64 {
	return RadiansToRotations(r.radians)
}

// Normalized returns r wrapped into (-π, π].
func (r Rotation) Normalized() Rotation {
	return Rotation{radians: WrapRadians(r.radians)}
}

// Minus returns r-other wrapped into (-π, π].
func (r Rotation) Minus(other Rotation) Rotation {
	return Rotation{radians: WrapRadians(r.radians - other.radians)}
}

// Plus returns r+other wrapped into (-π, π].
func (r Rotation) Plus(other Rotation) Rotation {
	return Rotation{radians: WrapRadians(r.radians + other.radians)}
}

func (r Rotation) IsFinite() bool {
	return !math.IsNaN(r.radians) && !math.IsInf(r.radians, 0)
}

// WrapRadians wraps an angle into (-π, π].
func WrapRadians(radians float64) float64 {
	wrapped := math.Mod(radians, twoPi)
	switch {
	case wrapped <= -math.Pi:
		wrapped += twoPi
	case wrapped > math.Pi:
		wrapped -= twoPi
	}

	return wrapped
}

// NearestContinuous returns the angle equivalent to target that is closest
// to current, so a continuous controller takes the shorter way round.
func NearestContinuous(current float64, target Rotation) float64 {
	return current + WrapRadians(target.radians-current)
}
