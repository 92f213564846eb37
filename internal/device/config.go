package device

import "time"

type NeutralMode int

const (
	NeutralBrake NeutralMode = iota
	NeutralCoast
)

func (m NeutralMode) String() string {
	if m == NeutralCoast {
		return "coast"
	}
	return "brake"
}

// FeedbackSource selects what the motor's closed loop uses as position.
type FeedbackSource int

const (
	FeedbackRotorSensor FeedbackSource = iota
	// FeedbackFusedEncoder fuses a remote absolute encoder with the rotor
	// sensor.
	FeedbackFusedEncoder
)

// Gains are closed-loop gains for slot 0.
type Gains struct {
	KP, KI, KD float64
}

// MotorConfig is the full configuration written to a motor controller in
// one Apply call.
type MotorConfig struct {
	NeutralMode NeutralMode
	Inverted    bool
	Slot0       Gains

	FeedbackSource         FeedbackSource
	FeedbackRemoteSensorID int
	SensorToMechanismRatio float64
	RotorToSensorRatio     float64
	ContinuousWrap         bool

	PeakForwardTorqueCurrent float64
	PeakReverseTorqueCurrent float64
	StatorCurrentLimit       float64
	StatorCurrentLimitEnable bool
	TorqueClosedLoopRamp     time.Duration
}

// EncoderConfig configures an absolute encoder.
type EncoderConfig struct {
	// MagnetOffset in rotations, used by motors fusing this encoder.
	MagnetOffset float64
	// ClockwisePositive flips the sensor direction.
	ClockwisePositive bool
}
