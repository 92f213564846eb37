package device

import "fmt"

type ControlMode int

const (
	ModeTorqueCurrent ControlMode = iota
	ModeVelocityTorqueCurrent
	ModePositionTorqueCurrent
)

func (m ControlMode) String() string {
	switch m {
	case ModeTorqueCurrent:
		return "torque_current"
	case ModeVelocityTorqueCurrent:
		return "velocity_torque_current"
	case ModePositionTorqueCurrent:
		return "position_torque_current"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ControlRequest is one setpoint for a motor's onboard controller. Requests
// are sent once and not republished by the device.
type ControlRequest struct {
	Mode ControlMode
	// Output is the torque current in amps for ModeTorqueCurrent.
	Output float64
	// Velocity in mechanism rotations per second.
	Velocity float64
	// Position in mechanism rotations.
	Position float64
	// FeedForward torque current in amps.
	FeedForward float64
}

func TorqueCurrent(amps float64) ControlRequest {
	return ControlRequest{Mode: ModeTorqueCurrent, Output: amps}
}

func VelocityTorqueCurrent(rotationsPerSec, feedforward float64) ControlRequest {
	return ControlRequest{Mode: ModeVelocityTorqueCurrent, Velocity: rotationsPerSec, FeedForward: feedforward}
}

func PositionTorqueCurrent(rotations float64) ControlRequest {
	return ControlRequest{Mode: ModePositionTorqueCurrent, Position: rotations}
}
