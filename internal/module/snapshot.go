package module

import "codeberg.org/mutker/swervectl/internal/units"

// Snapshot is everything one control cycle learned about a module. Each
// UpdateInputs call allocates fresh slices, so a Snapshot can be kept and
// read after later cycles without copying.
type Snapshot struct {
	DriveConnected         bool
	DrivePositionRad       float64
	DriveVelocityRadPerSec float64
	DriveAppliedVolts      float64
	DriveCurrentAmps       float64

	TurnConnected         bool
	TurnEncoderConnected  bool
	TurnAbsolutePosition  units.Rotation
	TurnPosition          units.Rotation
	TurnVelocityRadPerSec float64
	TurnAppliedVolts      float64
	TurnCurrentAmps       float64

	// Odometry samples since the previous cycle, oldest first. The three
	// slices always have equal length; index i of each was sampled at
	// OdometryTimestamps[i] seconds.
	OdometryTimestamps        []float64
	OdometryDrivePositionsRad []float64
	OdometryTurnPositions     []units.Rotation

	// DroppedSamples is the module's lifetime count of samples lost to queue
	// overflow.
	DroppedSamples uint64
}

// Samples returns the number of odometry samples in the snapshot.
func (s Snapshot) Samples() int {
	return len(s.OdometryTimestamps)
}
