package module

import (
	"math"
	"time"

	"codeberg.org/mutker/swervectl/internal/device"
	"codeberg.org/mutker/swervectl/internal/errors"
	"codeberg.org/mutker/swervectl/internal/health"
	"codeberg.org/mutker/swervectl/internal/units"
)

const (
	DefaultDriveCurrentLimit = 80.0
	DefaultTurnCurrentLimit  = 40.0
	DefaultControlFrequency  = 50.0

	torqueRampPeriod = 20 * time.Millisecond
)

var (
	DefaultDriveReduction = (50.0 / 14.0) * (16.0 / 28.0) * (45.0 / 15.0)
	DefaultTurnReduction  = 150.0 / 7.0
)

// Config is fixed at construction.
type Config struct {
	Name string

	// EncoderID is the bus ID of the absolute encoder the turn motor fuses.
	EncoderID       int
	EncoderOffset   units.Rotation
	TurnInverted    bool
	EncoderInverted bool

	DriveReduction    float64
	TurnReduction     float64
	DriveCurrentLimit float64
	TurnCurrentLimit  float64

	// ControlFrequency is the publish rate for signals read once per cycle.
	ControlFrequency float64
	Debounce         time.Duration
	Retry            device.Retry
}

func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		DriveReduction:    DefaultDriveReduction,
		TurnReduction:     DefaultTurnReduction,
		DriveCurrentLimit: DefaultDriveCurrentLimit,
		TurnCurrentLimit:  DefaultTurnCurrentLimit,
		ControlFrequency:  DefaultControlFrequency,
		Debounce:          health.DefaultWindow,
		Retry:             device.DefaultRetry(),
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	invalid := func(field string, value any) error {
		return errFactory.WithData(ErrInvalidConfig, struct {
			Module string
			Field  string
			Value  any
		}{c.Name, field, value})
	}

	switch {
	case c.Name == "":
		return invalid("name", c.Name)
	case !positive(c.DriveReduction):
		return invalid("drive_reduction", c.DriveReduction)
	case !positive(c.TurnReduction):
		return invalid("turn_reduction", c.TurnReduction)
	case !positive(c.DriveCurrentLimit):
		return invalid("drive_current_limit", c.DriveCurrentLimit)
	case !positive(c.TurnCurrentLimit):
		return invalid("turn_current_limit", c.TurnCurrentLimit)
	case !positive(c.ControlFrequency):
		return invalid("control_frequency", c.ControlFrequency)
	case !c.EncoderOffset.IsFinite():
		return invalid("encoder_offset", c.EncoderOffset.Rotations())
	case c.Debounce < 0:
		return invalid("debounce", c.Debounce)
	case c.Retry.Attempts < 1:
		return invalid("config_attempts", c.Retry.Attempts)
	}

	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func driveMotorConfig(c Config) device.MotorConfig {
	return device.MotorConfig{
		NeutralMode:              device.NeutralBrake,
		SensorToMechanismRatio:   c.DriveReduction,
		PeakForwardTorqueCurrent: c.DriveCurrentLimit,
		PeakReverseTorqueCurrent: -c.DriveCurrentLimit,
		StatorCurrentLimit:       c.DriveCurrentLimit,
		StatorCurrentLimitEnable: true,
		TorqueClosedLoopRamp:     torqueRampPeriod,
	}
}

func turnMotorConfig(c Config) device.MotorConfig {
	return device.MotorConfig{
		NeutralMode:              device.NeutralBrake,
		Inverted:                 c.TurnInverted,
		FeedbackSource:           device.FeedbackFusedEncoder,
		FeedbackRemoteSensorID:   c.EncoderID,
		RotorToSensorRatio:       c.TurnReduction,
		ContinuousWrap:           true,
		PeakForwardTorqueCurrent: c.TurnCurrentLimit,
		PeakReverseTorqueCurrent: -c.TurnCurrentLimit,
		StatorCurrentLimit:       c.TurnCurrentLimit,
		StatorCurrentLimitEnable: true,
	}
}

// encoderConfig leaves the magnet offset at zero, so the turn motor's fused
// position is raw too. The module subtracts EncoderOffset from every turn
// reading and adds it back to turn position commands.
func encoderConfig(c Config) device.EncoderConfig {
	return device.EncoderConfig{
		ClockwisePositive: c.EncoderInverted,
	}
}
