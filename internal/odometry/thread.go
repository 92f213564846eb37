// Package odometry samples high-rate signals on a background goroutine and
// buffers them for the control cycle.
//
// One Thread owns every queue. A sampling pass refreshes all registered
// signals, takes one timestamp and appends exactly one value to every queue
// while holding the thread's lock, so queues fed by the same passes always
// have equal length when observed from outside.
package odometry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/swervectl/internal/device"
	"codeberg.org/mutker/swervectl/internal/errors"
	"codeberg.org/mutker/swervectl/internal/logger"
	"codeberg.org/mutker/swervectl/internal/metrics"
)

const (
	DefaultFrequency     = 250.0
	DefaultQueueCapacity = 20
)

type ThreadConfig struct {
	// Frequency of sampling passes in Hz.
	Frequency float64
	// QueueCapacity bounds every queue; the oldest sample is dropped on
	// overflow.
	QueueCapacity int
	// RefreshTimeout bounds the batch refresh of one pass. Zero means two
	// sampling periods.
	RefreshTimeout time.Duration
}

func DefaultThreadConfig() ThreadConfig {
	return ThreadConfig{
		Frequency:     DefaultFrequency,
		QueueCapacity: DefaultQueueCapacity,
	}
}

func (c ThreadConfig) Validate() error {
	errFactory := errors.New()
	if c.Frequency <= 0 {
		return errFactory.WithData(errors.ErrInvalidFrequency, c.Frequency)
	}
	if c.QueueCapacity < 1 {
		return errFactory.WithData(ErrInvalidConfig, "queue capacity must be at least 1")
	}
	if c.RefreshTimeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, "refresh timeout must not be negative")
	}
	return nil
}

func (c ThreadConfig) period() time.Duration {
	return time.Duration(float64(time.Second) / c.Frequency)
}

// Thread is the sampling goroutine plus the registry of queues it feeds.
type Thread struct {
	cfg   ThreadConfig
	now   func() time.Time
	epoch time.Time
	log   logger.Logger

	mu       sync.Mutex
	queues   []*Queue
	signals  []*device.Signal
	known    map[*device.Signal]struct{}
	started  bool
	tsQueues int
	passes   atomic.Uint64
	done     chan struct{}
}

type Option func(*Thread)

// WithClock replaces time.Now. The clock must be monotonic.
func WithClock(now func() time.Time) Option {
	return func(t *Thread) {
		t.now = now
	}
}

func WithLogger(log logger.Logger) Option {
	return func(t *Thread) {
		t.log = log
	}
}

// NewThread validates cfg and creates a stopped thread with no queues.
func NewThread(cfg ThreadConfig, opts ...Option) (*Thread, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RefreshTimeout == 0 {
		cfg.RefreshTimeout = 2 * cfg.period()
	}

	t := &Thread{
		cfg:   cfg,
		now:   time.Now,
		log:   logger.With("component", "odometry"),
		known: make(map[*device.Signal]struct{}),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.epoch = t.now()

	return t, nil
}

func (t *Thread) Frequency() float64 {
	return t.cfg.Frequency
}

// Passes returns the number of completed sampling passes.
func (t *Thread) Passes() uint64 {
	return t.passes.Load()
}

// RegisterSignal allocates a queue fed from sig on every pass. Registration
// is closed once the thread has started.
func (t *Thread) RegisterSignal(sig *device.Signal) (*Queue, error) {
	if sig == nil {
		return nil, errors.New().New(ErrNilSource)
	}

	return t.register(sig.Name(), func(q *Queue) {
		q.signal = sig
		if _, ok := t.known[sig]; !ok {
			t.known[sig] = struct{}{}
			t.signals = append(t.signals, sig)
		}
	})
}

// RegisterSupplier allocates a queue fed from fn on every pass, for values
// that do not come from a device signal. When fn reports false the last
// value is repeated.
func (t *Thread) RegisterSupplier(name string, fn func() (float64, bool)) (*Queue, error) {
	if fn == nil {
		return nil, errors.New().New(ErrNilSource)
	}

	return t.register(name, func(q *Queue) {
		q.supplier = fn
	})
}

// MakeTimestampQueue allocates a queue that receives the pass timestamp in
// seconds since the thread was created. Every timestamp queue receives the
// same value on each pass, so each consumer can drain its own without
// affecting the others.
func (t *Thread) MakeTimestampQueue() (*Queue, error) {
	return t.register("", func(q *Queue) {
		q.isTime = true
		t.tsQueues++
		q.name = fmt.Sprintf("timestamps/%d", t.tsQueues)
	})
}

func (t *Thread) register(name string, init func(*Queue)) (*Queue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil, errors.New().WithData(ErrAlreadyStarted, name)
	}

	q := newQueue(t, name, t.cfg.QueueCapacity)
	init(q)
	t.queues = append(t.queues, q)

	return q, nil
}

// Drain empties the given queues under one lock acquisition and returns
// their samples, oldest first, in argument order. Queues that receive every
// pass come back with equal lengths.
func (t *Thread) Drain(queues ...*Queue) ([][]float64, error) {
	for _, q := range queues {
		if q == nil || q.owner != t {
			return nil, errors.New().New(ErrForeignQueue)
		}
	}

	out := make([][]float64, len(queues))

	t.mu.Lock()
	for i, q := range queues {
		out[i] = q.drain()
	}
	t.mu.Unlock()

	return out, nil
}

// Sample runs one sampling pass. It must not run concurrently with itself;
// after Start only the sampling goroutine calls it.
func (t *Thread) Sample(ctx context.Context) {
	t.mu.Lock()
	signals := t.signals
	queues := t.queues
	t.mu.Unlock()

	if len(signals) > 0 {
		refreshCtx, cancel := context.WithTimeout(ctx, t.cfg.RefreshTimeout)
		err := device.RefreshAll(refreshCtx, signals...)
		cancel()
		if err != nil {
			metrics.RecordRefreshFailure()
			t.log.Debug().Err(err).Msg("Odometry refresh failed, repeating last values")
		}
	}

	timestamp := t.now().Sub(t.epoch).Seconds()

	values := make([]float64, len(queues))
	for i, q := range queues {
		values[i] = q.next(timestamp)
	}

	var dropped []*Queue
	t.mu.Lock()
	for i, q := range queues {
		if q.push(values[i]) {
			dropped = append(dropped, q)
		}
	}
	t.mu.Unlock()

	for _, q := range dropped {
		metrics.RecordDroppedSamples(q.name, 1)
	}
	t.passes.Add(1)
	metrics.RecordOdometryPass()
}

// Start closes registration and runs sampling passes on a ticker until ctx
// is cancelled. It returns immediately.
func (t *Thread) Start(ctx context.Context) error {
	if err := t.markStarted(); err != nil {
		return err
	}
	go t.loop(ctx)

	return nil
}

// Run is Start without the goroutine: it blocks until ctx is cancelled.
func (t *Thread) Run(ctx context.Context) error {
	if err := t.markStarted(); err != nil {
		return err
	}
	t.loop(ctx)

	return nil
}

// Wait blocks until the sampling loop has exited.
func (t *Thread) Wait() {
	<-t.done
}

func (t *Thread) markStarted() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return errors.New().New(ErrAlreadyStarted)
	}
	t.started = true

	return nil
}

func (t *Thread) loop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.cfg.period())
	defer ticker.Stop()

	t.log.Info().
		Float64("frequency_hz", t.cfg.Frequency).
		Int("queues", len(t.queues)).
		Int("signals", len(t.signals)).
		Msg("Odometry sampling started")

	for {
		select {
		case <-ctx.Done():
			t.log.Info().Uint64("passes", t.Passes()).Msg("Odometry sampling stopped")
			return
		case <-ticker.C:
			t.Sample(ctx)
		}
	}
}
