// Package module controls one swerve module: a drive motor, a turn motor and
// the absolute encoder the turn motor fuses with its rotor sensor.
package module

import (
	"context"
	"math"
	"time"

	"codeberg.org/mutker/swervectl/internal/device"
	"codeberg.org/mutker/swervectl/internal/errors"
	"codeberg.org/mutker/swervectl/internal/health"
	"codeberg.org/mutker/swervectl/internal/logger"
	"codeberg.org/mutker/swervectl/internal/metrics"
	"codeberg.org/mutker/swervectl/internal/odometry"
	"codeberg.org/mutker/swervectl/internal/units"
	"codeberg.org/mutker/swervectl/internal/workpool"
)

// Hardware is the set of device proxies one module drives.
type Hardware struct {
	Drive   device.Motor
	Turn    device.Motor
	Encoder device.Encoder
}

type Module struct {
	cfg     Config
	log     logger.Logger
	thread  *odometry.Thread
	pool    workpool.Submitter
	drive   device.Motor
	turn    device.Motor
	encoder device.Encoder

	driveConfig *guardedConfig
	turnConfig  *guardedConfig

	drivePosition *device.Signal
	driveVelocity *device.Signal
	driveVolts    *device.Signal
	driveCurrent  *device.Signal
	turnAbsolute  *device.Signal
	turnPosition  *device.Signal
	turnVelocity  *device.Signal
	turnVolts     *device.Signal
	turnCurrent   *device.Signal

	timestampQueue     *odometry.Queue
	drivePositionQueue *odometry.Queue
	turnPositionQueue  *odometry.Queue

	driveConnected   *health.Debouncer
	turnConnected    *health.Debouncer
	encoderConnected *health.Debouncer
}

type Option func(*options)

type options struct {
	log  logger.Logger
	pool workpool.Submitter
	now  func() time.Time
}

func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithPool sets where brake mode writes run. It is required.
func WithPool(pool workpool.Submitter) Option {
	return func(o *options) {
		o.pool = pool
	}
}

// WithClock replaces time.Now in the connection debouncers.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New configures the module's devices and registers its odometry signals
// with thread, which must not have started yet. ctx bounds the
// configuration writes made during construction. Writes that exhaust their
// retries are logged and counted; only an invalid Config, missing hardware or
// a missing pool makes New fail.
func New(ctx context.Context, cfg Config, hw Hardware, thread *odometry.Thread, opts ...Option) (*Module, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hw.Drive == nil || hw.Turn == nil || hw.Encoder == nil || thread == nil {
		return nil, errFactory.WithData(ErrMissingHardware, cfg.Name)
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.With("component", "module")
	}
	if o.pool == nil {
		return nil, errFactory.WithData(ErrMissingPool, cfg.Name)
	}

	m := &Module{
		cfg:         cfg,
		log:         o.log.With("module", cfg.Name),
		thread:      thread,
		pool:        o.pool,
		drive:       hw.Drive,
		turn:        hw.Turn,
		encoder:     hw.Encoder,
		driveConfig: newGuardedConfig(driveMotorConfig(cfg)),
		turnConfig:  newGuardedConfig(turnMotorConfig(cfg)),

		drivePosition: hw.Drive.Signal(device.Position),
		driveVelocity: hw.Drive.Signal(device.Velocity),
		driveVolts:    hw.Drive.Signal(device.MotorVoltage),
		driveCurrent:  hw.Drive.Signal(device.StatorCurrent),
		turnAbsolute:  hw.Encoder.Signal(device.AbsolutePosition),
		turnPosition:  hw.Turn.Signal(device.Position),
		turnVelocity:  hw.Turn.Signal(device.Velocity),
		turnVolts:     hw.Turn.Signal(device.MotorVoltage),
		turnCurrent:   hw.Turn.Signal(device.StatorCurrent),

		driveConnected:   health.NewDebouncer(cfg.Debounce, health.WithClock(o.now)),
		turnConnected:    health.NewDebouncer(cfg.Debounce, health.WithClock(o.now)),
		encoderConnected: health.NewDebouncer(cfg.Debounce, health.WithClock(o.now)),
	}

	m.configureDevices(ctx)

	if err := m.registerOdometry(); err != nil {
		return nil, errFactory.Wrap(ErrRegisterFailed, err)
	}

	m.setUpdateFrequencies(ctx)
	m.optimizeBusUtilization(ctx)

	m.log.Debug().Msg("Module configured")

	return m, nil
}

func (m *Module) configureDevices(ctx context.Context) {
	_ = m.driveConfig.Update(nil, func(cfg device.MotorConfig) error {
		return m.retry(ctx, m.drive, "apply_config", func(ctx context.Context) error {
			return m.drive.Apply(ctx, cfg)
		})
	})
	_ = m.retry(ctx, m.drive, "zero_position", func(ctx context.Context) error {
		return m.drive.SetPosition(ctx, 0)
	})

	_ = m.turnConfig.Update(nil, func(cfg device.MotorConfig) error {
		return m.retry(ctx, m.turn, "apply_config", func(ctx context.Context) error {
			return m.turn.Apply(ctx, cfg)
		})
	})

	encoderCfg := encoderConfig(m.cfg)
	_ = m.retry(ctx, m.encoder, "apply_config", func(ctx context.Context) error {
		return m.encoder.Apply(ctx, encoderCfg)
	})
}

func (m *Module) registerOdometry() error {
	var err error

	if m.timestampQueue, err = m.thread.MakeTimestampQueue(); err != nil {
		return err
	}
	if m.drivePositionQueue, err = m.thread.RegisterSignal(m.drivePosition); err != nil {
		return err
	}
	if m.turnPositionQueue, err = m.thread.RegisterSignal(m.turnPosition); err != nil {
		return err
	}

	return nil
}

// setUpdateFrequencies is best effort: a device that keeps its default rate
// still works, only with more bus traffic.
func (m *Module) setUpdateFrequencies(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Retry.Timeout*time.Duration(m.cfg.Retry.Attempts))
	defer cancel()

	err := device.SetUpdateFrequencyForAll(ctx, m.thread.Frequency(), m.drivePosition, m.turnPosition)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to set odometry signal frequency")
	}

	err = device.SetUpdateFrequencyForAll(ctx, m.cfg.ControlFrequency,
		m.driveVelocity, m.driveVolts, m.driveCurrent,
		m.turnAbsolute, m.turnVelocity, m.turnVolts, m.turnCurrent,
	)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to set control signal frequency")
	}
}

// optimizeBusUtilization mutes the signals nothing asked for. Best effort,
// like setUpdateFrequencies.
func (m *Module) optimizeBusUtilization(ctx context.Context) {
	for _, dev := range []device.Device{m.drive, m.turn, m.encoder} {
		_ = m.retry(ctx, dev, "optimize_bus_utilization", dev.OptimizeBusUtilization)
	}
}

// retry runs a configuration write under the module's retry budget. When
// the budget is spent the failure is logged and counted, and returned so
// callers that care can react.
func (m *Module) retry(ctx context.Context, dev device.Device, operation string, fn func(ctx context.Context) error) error {
	err := m.cfg.Retry.Do(ctx, fn)
	if err == nil {
		return nil
	}

	metrics.RecordConfigExhausted(dev.Name(), operation)
	m.log.Warn().
		Err(err).
		Str("device", dev.Name()).
		Str("operation", operation).
		Int("attempts", m.cfg.Retry.Attempts).
		Msg("Device did not acknowledge configuration")

	return errors.New().Wrap(ErrConfigFailed, err)
}

func (m *Module) Name() string {
	return m.cfg.Name
}

// UpdateInputs refreshes the module's signals, updates connection state and
// drains the odometry samples taken since the previous call.
func (m *Module) UpdateInputs(ctx context.Context) Snapshot {
	driveOK := m.refresh(ctx, m.drive, m.drivePosition, m.driveVelocity, m.driveVolts, m.driveCurrent)
	turnOK := m.refresh(ctx, m.turn, m.turnPosition, m.turnVelocity, m.turnVolts, m.turnCurrent)
	encoderOK := m.refresh(ctx, m.encoder, m.turnAbsolute)

	s := Snapshot{
		DriveConnected:         m.driveConnected.Calculate(driveOK),
		DrivePositionRad:       units.RotationsToRadians(m.drivePosition.Value()),
		DriveVelocityRadPerSec: units.RotationsToRadians(m.driveVelocity.Value()),
		DriveAppliedVolts:      m.driveVolts.Value(),
		DriveCurrentAmps:       m.driveCurrent.Value(),

		TurnConnected:         m.turnConnected.Calculate(turnOK),
		TurnEncoderConnected:  m.encoderConnected.Calculate(encoderOK),
		TurnAbsolutePosition:  units.FromRotations(m.turnAbsolute.Value()).Minus(m.cfg.EncoderOffset).Normalized(),
		TurnPosition:          m.turnFrame(m.turnPosition.Value()),
		TurnVelocityRadPerSec: units.RotationsToRadians(m.turnVelocity.Value()),
		TurnAppliedVolts:      m.turnVolts.Value(),
		TurnCurrentAmps:       m.turnCurrent.Value(),
	}

	metrics.SetConnected(m.cfg.Name, "drive", s.DriveConnected)
	metrics.SetConnected(m.cfg.Name, "turn", s.TurnConnected)
	metrics.SetConnected(m.cfg.Name, "encoder", s.TurnEncoderConnected)

	drained, err := m.thread.Drain(m.timestampQueue, m.drivePositionQueue, m.turnPositionQueue)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to drain odometry queues")
		return s
	}

	timestamps, drivePositions, turnPositions := drained[0], drained[1], drained[2]
	n := min(len(timestamps), len(drivePositions), len(turnPositions))

	s.OdometryTimestamps = timestamps[:n]
	s.OdometryDrivePositionsRad = make([]float64, n)
	s.OdometryTurnPositions = make([]units.Rotation, n)
	for i := 0; i < n; i++ {
		s.OdometryDrivePositionsRad[i] = units.RotationsToRadians(drivePositions[i])
		s.OdometryTurnPositions[i] = m.turnFrame(turnPositions[i])
	}
	s.DroppedSamples = m.timestampQueue.Dropped()

	return s
}

// refresh reports the outcome of this refresh only. Signal.OK is shared with
// the odometry sampler and may already reflect a later read.
func (m *Module) refresh(ctx context.Context, dev device.Device, signals ...*device.Signal) bool {
	if err := dev.Refresh(ctx, signals...); err != nil {
		m.log.Debug().Err(err).Str("device", dev.Name()).Msg("Refresh failed")
		return false
	}
	return true
}

// turnFrame converts a raw turn motor position to the offset-corrected frame
// TurnAbsolutePosition uses. The result stays continuous.
func (m *Module) turnFrame(rotations float64) units.Rotation {
	return units.FromRotations(rotations - m.cfg.EncoderOffset.Rotations())
}

// RunDriveOpenLoop commands drive torque current in amps.
func (m *Module) RunDriveOpenLoop(output float64) error {
	if !finite(output) {
		return invalidCommand("drive_open_loop", output)
	}
	return m.send(m.drive, device.TorqueCurrent(output))
}

// RunTurnOpenLoop commands turn torque current in amps.
func (m *Module) RunTurnOpenLoop(output float64) error {
	if !finite(output) {
		return invalidCommand("turn_open_loop", output)
	}
	return m.send(m.turn, device.TorqueCurrent(output))
}

// RunDriveVelocity commands a drive velocity in radians per second at the
// wheel, with feedforward in amps.
func (m *Module) RunDriveVelocity(velocityRadPerSec, feedforward float64) error {
	if !finite(velocityRadPerSec) {
		return invalidCommand("drive_velocity", velocityRadPerSec)
	}
	if !finite(feedforward) {
		return invalidCommand("drive_feedforward", feedforward)
	}
	return m.send(m.drive, device.VelocityTorqueCurrent(units.RadiansToRotations(velocityRadPerSec), feedforward))
}

// RunTurnPosition commands the module heading, in the same frame as
// TurnAbsolutePosition. The target is the continuous position equivalent to
// angle that is nearest to the last known turn position, so the module never
// turns more than half a rotation.
func (m *Module) RunTurnPosition(angle units.Rotation) error {
	if !angle.IsFinite() {
		return invalidCommand("turn_position", angle.Radians())
	}

	current := m.turnFrame(m.turnPosition.Value()).Radians()
	target := units.RadiansToRotations(units.NearestContinuous(current, angle))

	return m.send(m.turn, device.PositionTorqueCurrent(target+m.cfg.EncoderOffset.Rotations()))
}

func (m *Module) send(motor device.Motor, req device.ControlRequest) error {
	if err := motor.SetControl(req); err != nil {
		return errors.New().Wrap(ErrCommandFailed, err)
	}
	return nil
}

// SetDrivePID replaces the drive closed-loop gains. It blocks until the
// motor acknowledges, the retry budget is spent or ctx is done.
func (m *Module) SetDrivePID(ctx context.Context, kP, kI, kD float64) error {
	return m.setPID(ctx, m.drive, m.driveConfig, kP, kI, kD)
}

// SetTurnPID replaces the turn closed-loop gains. It blocks until the motor
// acknowledges, the retry budget is spent or ctx is done.
func (m *Module) SetTurnPID(ctx context.Context, kP, kI, kD float64) error {
	return m.setPID(ctx, m.turn, m.turnConfig, kP, kI, kD)
}

func (m *Module) setPID(ctx context.Context, motor device.Motor, guarded *guardedConfig, kP, kI, kD float64) error {
	for _, g := range []float64{kP, kI, kD} {
		if !finite(g) || g < 0 {
			return invalidCommand("pid_gains", []float64{kP, kI, kD})
		}
	}

	return guarded.Update(
		func(cfg *device.MotorConfig) {
			cfg.Slot0 = device.Gains{KP: kP, KI: kI, KD: kD}
		},
		func(cfg device.MotorConfig) error {
			return m.retry(ctx, motor, "set_pid", func(ctx context.Context) error {
				return motor.Apply(ctx, cfg)
			})
		},
	)
}

// SetBrakeMode switches the drive motor between brake and coast. The write
// runs on the worker pool under ctx; the return value reports whether it was
// queued.
func (m *Module) SetBrakeMode(ctx context.Context, enabled bool) bool {
	mode := device.NeutralCoast
	if enabled {
		mode = device.NeutralBrake
	}

	return m.pool.Submit(m.cfg.Name+"/brake_mode", func() {
		_ = m.driveConfig.Update(
			func(cfg *device.MotorConfig) {
				cfg.NeutralMode = mode
			},
			func(cfg device.MotorConfig) error {
				return m.retry(ctx, m.drive, "set_neutral_mode", func(ctx context.Context) error {
					return m.drive.Apply(ctx, cfg)
				})
			},
		)
	})
}

// DriveConfig returns a copy of the drive motor configuration as last
// written.
func (m *Module) DriveConfig() device.MotorConfig {
	return m.driveConfig.Get()
}

// TurnConfig returns a copy of the turn motor configuration as last written.
func (m *Module) TurnConfig() device.MotorConfig {
	return m.turnConfig.Get()
}

// Close exists for symmetry with the pool. Queues belong to the thread and
// outlive the module.
func (m *Module) Close() error {
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func invalidCommand(operation string, value any) error {
	return errors.New().WithData(ErrInvalidCommand, struct {
		Operation string
		Value     any
	}{operation, value})
}
