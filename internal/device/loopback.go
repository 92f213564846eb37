package device

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/swervectl/internal/errors"
)

// loopback holds the parts shared by LoopbackMotor and LoopbackEncoder:
// failure injection and call accounting.
type loopback struct {
	name string

	mu           sync.Mutex
	signals      map[Kind]*Signal
	failApply    int
	failRefresh  int
	failOptimize int
	applyDelay   time.Duration
	applyCalls   int
	refreshCalls int
	optimized    int
	inApply      int
	maxInApply   int
}

func newLoopback(name string) *loopback {
	return &loopback{name: name, signals: make(map[Kind]*Signal)}
}

func (l *loopback) Name() string {
	return l.name
}

// FailApply makes the next n configuration writes go unacknowledged.
func (l *loopback) FailApply(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failApply = n
}

// FailRefresh makes the next n refreshes fail.
func (l *loopback) FailRefresh(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failRefresh = n
}

// FailOptimize makes the next n bus utilization requests go unacknowledged.
func (l *loopback) FailOptimize(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failOptimize = n
}

// SetApplyDelay makes every configuration write take d.
func (l *loopback) SetApplyDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyDelay = d
}

func (l *loopback) ApplyCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyCalls
}

func (l *loopback) RefreshCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refreshCalls
}

// OptimizeCalls counts OptimizeBusUtilization calls, acknowledged or not.
func (l *loopback) OptimizeCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.optimized
}

// MaxConcurrentApply is the largest number of Apply calls that were ever in
// flight at once.
func (l *loopback) MaxConcurrentApply() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxInApply
}

func (l *loopback) signal(dev Device, kind Kind) *Signal {
	l.mu.Lock()
	defer l.mu.Unlock()

	sig, ok := l.signals[kind]
	if !ok {
		sig = NewSignal(dev, kind)
		l.signals[kind] = sig
	}

	return sig
}

// beginApply accounts for an Apply call and returns whether it should be
// acknowledged. The caller must invoke the returned done func.
func (l *loopback) beginApply(ctx context.Context) (func(), error) {
	l.mu.Lock()
	l.applyCalls++
	l.inApply++
	if l.inApply > l.maxInApply {
		l.maxInApply = l.inApply
	}
	delay := l.applyDelay
	fail := l.failApply > 0
	if fail {
		l.failApply--
	}
	l.mu.Unlock()

	done := func() {
		l.mu.Lock()
		l.inApply--
		l.mu.Unlock()
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return done, errors.New().Wrap(ErrNoAck, ctx.Err())
		}
	}

	if fail {
		return done, errors.New().WithData(ErrNoAck, l.name)
	}

	return done, nil
}

func (l *loopback) beginRefresh(signals []*Signal, dev Device) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refreshCalls++
	for _, sig := range signals {
		if sig.Device() != dev {
			return errors.New().WithData(ErrForeignSignal, sig.Name())
		}
	}

	if l.failRefresh > 0 {
		l.failRefresh--
		for _, sig := range signals {
			sig.Fail()
		}
		return errors.New().WithData(ErrRefreshFailed, l.name)
	}

	return nil
}

func (l *loopback) SetUpdateFrequency(_ context.Context, hz float64, signals ...*Signal) error {
	for _, sig := range signals {
		sig.SetNominalFrequency(hz)
	}
	return nil
}

// OptimizeBusUtilization only counts the request; loopback signals have no
// bus to free.
func (l *loopback) OptimizeBusUtilization(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.optimized++
	if l.failOptimize > 0 {
		l.failOptimize--
		return errors.New().WithData(ErrNoAck, l.name)
	}

	return nil
}

// LoopbackMotor is an in-process Motor. Position follows position requests
// immediately and integrates velocity requests between refreshes.
type LoopbackMotor struct {
	*loopback

	state      sync.Mutex
	configs    []MotorConfig
	controls   []ControlRequest
	position   float64
	velocity   float64
	current    float64
	lastUpdate time.Time
	now        func() time.Time
}

func NewLoopbackMotor(name string) *LoopbackMotor {
	m := &LoopbackMotor{loopback: newLoopback(name), now: time.Now}
	m.lastUpdate = m.now()
	return m
}

func (m *LoopbackMotor) Signal(kind Kind) *Signal {
	return m.signal(m, kind)
}

func (m *LoopbackMotor) Apply(ctx context.Context, cfg MotorConfig) error {
	done, err := m.beginApply(ctx)
	defer done()
	if err != nil {
		return err
	}

	m.state.Lock()
	defer m.state.Unlock()
	m.configs = append(m.configs, cfg)

	return nil
}

func (m *LoopbackMotor) SetPosition(ctx context.Context, rotations float64) error {
	done, err := m.beginApply(ctx)
	defer done()
	if err != nil {
		return err
	}

	m.state.Lock()
	defer m.state.Unlock()
	m.position = rotations

	return nil
}

func (m *LoopbackMotor) SetControl(req ControlRequest) error {
	m.state.Lock()
	defer m.state.Unlock()

	m.integrate()
	m.controls = append(m.controls, req)
	switch req.Mode {
	case ModeTorqueCurrent:
		m.current = req.Output
	case ModeVelocityTorqueCurrent:
		m.velocity = req.Velocity
		m.current = req.FeedForward
	case ModePositionTorqueCurrent:
		m.position = req.Position
		m.velocity = 0
	default:
		return errors.New().WithData(ErrControlRejected, req.Mode.String())
	}

	return nil
}

func (m *LoopbackMotor) Refresh(_ context.Context, signals ...*Signal) error {
	if err := m.beginRefresh(signals, m); err != nil {
		return err
	}

	m.state.Lock()
	defer m.state.Unlock()

	m.integrate()
	for _, sig := range signals {
		switch sig.Kind() {
		case Position:
			sig.Update(m.position)
		case Velocity:
			sig.Update(m.velocity)
		case MotorVoltage:
			sig.Update(0)
		case StatorCurrent:
			sig.Update(m.current)
		default:
			sig.Fail()
		}
	}

	return nil
}

func (m *LoopbackMotor) integrate() {
	now := m.now()
	m.position += m.velocity * now.Sub(m.lastUpdate).Seconds()
	m.lastUpdate = now
}

// Configs returns every configuration the motor acknowledged, oldest first.
func (m *LoopbackMotor) Configs() []MotorConfig {
	m.state.Lock()
	defer m.state.Unlock()
	out := make([]MotorConfig, len(m.configs))
	copy(out, m.configs)
	return out
}

// LastControl returns the most recent control request.
func (m *LoopbackMotor) LastControl() (ControlRequest, bool) {
	m.state.Lock()
	defer m.state.Unlock()
	if len(m.controls) == 0 {
		return ControlRequest{}, false
	}
	return m.controls[len(m.controls)-1], true
}

func (m *LoopbackMotor) ControlCount() int {
	m.state.Lock()
	defer m.state.Unlock()
	return len(m.controls)
}

// LoopbackEncoder is an in-process Encoder. The reported absolute position is
// the raw magnet angle; the configured offset is not applied to it.
type LoopbackEncoder struct {
	*loopback

	state    sync.Mutex
	configs  []EncoderConfig
	absolute float64
}

func NewLoopbackEncoder(name string) *LoopbackEncoder {
	return &LoopbackEncoder{loopback: newLoopback(name)}
}

func (e *LoopbackEncoder) Signal(kind Kind) *Signal {
	return e.signal(e, kind)
}

func (e *LoopbackEncoder) Apply(ctx context.Context, cfg EncoderConfig) error {
	done, err := e.beginApply(ctx)
	defer done()
	if err != nil {
		return err
	}

	e.state.Lock()
	defer e.state.Unlock()
	e.configs = append(e.configs, cfg)

	return nil
}

// SetAbsolute sets the raw magnet angle in rotations.
func (e *LoopbackEncoder) SetAbsolute(rotations float64) {
	e.state.Lock()
	defer e.state.Unlock()
	e.absolute = rotations
}

func (e *LoopbackEncoder) Refresh(_ context.Context, signals ...*Signal) error {
	if err := e.beginRefresh(signals, e); err != nil {
		return err
	}

	e.state.Lock()
	defer e.state.Unlock()
	for _, sig := range signals {
		if sig.Kind() == AbsolutePosition {
			sig.Update(e.absolute)
			continue
		}
		sig.Fail()
	}

	return nil
}

func (e *LoopbackEncoder) Configs() []EncoderConfig {
	e.state.Lock()
	defer e.state.Unlock()
	out := make([]EncoderConfig, len(e.configs))
	copy(out, e.configs)
	return out
}
