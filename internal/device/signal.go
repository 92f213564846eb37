package device

import (
	"math"
	"sync/atomic"
)

// Kind identifies which reading a Signal carries.
type Kind int

const (
	Position Kind = iota
	Velocity
	MotorVoltage
	StatorCurrent
	AbsolutePosition
)

// Unit is the raw unit a device reports a signal in.
type Unit string

const (
	UnitRotations          Unit = "rotations"
	UnitRotationsPerSecond Unit = "rotations/s"
	UnitVolts              Unit = "V"
	UnitAmps               Unit = "A"
)

func (k Kind) String() string {
	switch k {
	case Position:
		return "position"
	case Velocity:
		return "velocity"
	case MotorVoltage:
		return "motor_voltage"
	case StatorCurrent:
		return "stator_current"
	case AbsolutePosition:
		return "absolute_position"
	default:
		return "unknown"
	}
}

// Unit returns the raw unit for signals of this kind.
func (k Kind) Unit() Unit {
	switch k {
	case Position, AbsolutePosition:
		return UnitRotations
	case Velocity:
		return UnitRotationsPerSecond
	case MotorVoltage:
		return UnitVolts
	case StatorCurrent:
		return UnitAmps
	default:
		return ""
	}
}

// Signal is a long-lived reading owned by a device. The value is refreshed in
// place and may be read and written from different goroutines.
type Signal struct {
	device Device
	kind   Kind
	value  atomic.Uint64
	ok     atomic.Bool
	hz     atomic.Uint64
}

// NewSignal creates a signal owned by dev. Device implementations call this
// once per kind and hand out the same pointer for the device's lifetime.
func NewSignal(dev Device, kind Kind) *Signal {
	return &Signal{device: dev, kind: kind}
}

func (s *Signal) Device() Device {
	return s.device
}

func (s *Signal) Kind() Kind {
	return s.kind
}

func (s *Signal) Unit() Unit {
	return s.kind.Unit()
}

// Name is "<device>/<kind>".
func (s *Signal) Name() string {
	if s.device == nil {
		return s.kind.String()
	}
	return s.device.Name() + "/" + s.kind.String()
}

// Value returns the last successfully refreshed value.
func (s *Signal) Value() float64 {
	return math.Float64frombits(s.value.Load())
}

// OK reports whether the last refresh of this signal succeeded.
func (s *Signal) OK() bool {
	return s.ok.Load()
}

// Update stores a freshly read value.
func (s *Signal) Update(v float64) {
	s.value.Store(math.Float64bits(v))
	s.ok.Store(true)
}

// Fail marks the last refresh as failed and keeps the previous value.
func (s *Signal) Fail() {
	s.ok.Store(false)
}

// NominalFrequency is the publish rate last configured for the signal, in Hz.
func (s *Signal) NominalFrequency() float64 {
	return math.Float64frombits(s.hz.Load())
}

// SetNominalFrequency records the publish rate a device accepted.
func (s *Signal) SetNominalFrequency(hz float64) {
	s.hz.Store(math.Float64bits(hz))
}
