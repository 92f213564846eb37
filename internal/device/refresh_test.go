package device_test

import (
	"context"
	"testing"

	"codeberg.org/mutker/swervectl/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshAllGroupsByDevice(t *testing.T) {
	ctx := context.Background()
	drive := device.NewLoopbackMotor("drive")
	turn := device.NewLoopbackMotor("turn")

	err := device.RefreshAll(ctx,
		drive.Signal(device.Position),
		turn.Signal(device.Position),
		drive.Signal(device.Velocity),
	)

	require.NoError(t, err)
	assert.Equal(t, 1, drive.RefreshCalls())
	assert.Equal(t, 1, turn.RefreshCalls())
}

func TestRefreshAllContinuesPastFailure(t *testing.T) {
	ctx := context.Background()
	drive := device.NewLoopbackMotor("drive")
	encoder := device.NewLoopbackEncoder("encoder")
	encoder.SetAbsolute(0.3)

	require.NoError(t, drive.SetControl(device.PositionTorqueCurrent(2)))
	require.NoError(t, device.RefreshAll(ctx, drive.Signal(device.Position)))
	drive.FailRefresh(1)

	err := device.RefreshAll(ctx, drive.Signal(device.Position), encoder.Signal(device.AbsolutePosition))

	require.Error(t, err)
	assert.False(t, drive.Signal(device.Position).OK())
	assert.InDelta(t, 2.0, drive.Signal(device.Position).Value(), 1e-9, "failed refresh keeps last value")
	assert.True(t, encoder.Signal(device.AbsolutePosition).OK())
	assert.InDelta(t, 0.3, encoder.Signal(device.AbsolutePosition).Value(), 1e-9)
}

func TestSignalIdentityIsStable(t *testing.T) {
	motor := device.NewLoopbackMotor("turn")

	assert.Same(t, motor.Signal(device.Position), motor.Signal(device.Position))
	assert.Equal(t, "turn/position", motor.Signal(device.Position).Name())
	assert.Equal(t, device.UnitRotations, motor.Signal(device.Position).Unit())
}

func TestSetUpdateFrequencyForAll(t *testing.T) {
	drive := device.NewLoopbackMotor("drive")
	encoder := device.NewLoopbackEncoder("encoder")

	err := device.SetUpdateFrequencyForAll(context.Background(), 250,
		drive.Signal(device.Position), encoder.Signal(device.AbsolutePosition))

	require.NoError(t, err)
	assert.Equal(t, 250.0, drive.Signal(device.Position).NominalFrequency())
	assert.Equal(t, 250.0, encoder.Signal(device.AbsolutePosition).NominalFrequency())
}

func TestLoopbackRejectsForeignSignal(t *testing.T) {
	drive := device.NewLoopbackMotor("drive")
	turn := device.NewLoopbackMotor("turn")

	err := drive.Refresh(context.Background(), turn.Signal(device.Position))

	assert.Error(t, err)
}
