package device

import "context"

// Device is a proxy for one physical controller on the bus. Calls block until
// the device answers or the context expires.
type Device interface {
	Name() string
	// Refresh reads the given signals, which must belong to this device, in
	// one bus transaction. Signals that could not be read keep their last
	// value and report !OK.
	Refresh(ctx context.Context, signals ...*Signal) error
	// SetUpdateFrequency sets how often the device publishes the signals.
	SetUpdateFrequency(ctx context.Context, hz float64, signals ...*Signal) error
	// OptimizeBusUtilization stops publishing every signal that has no
	// explicit update frequency.
	OptimizeBusUtilization(ctx context.Context) error
}

// Motor is a motor controller with an onboard closed-loop controller.
type Motor interface {
	Device
	Signal(kind Kind) *Signal
	Apply(ctx context.Context, cfg MotorConfig) error
	// SetPosition overwrites the mechanism position, in rotations.
	SetPosition(ctx context.Context, rotations float64) error
	SetControl(req ControlRequest) error
}

// Encoder is an absolute magnetic encoder.
type Encoder interface {
	Device
	Signal(kind Kind) *Signal
	Apply(ctx context.Context, cfg EncoderConfig) error
}
