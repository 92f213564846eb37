// Package health turns noisy per-cycle connectivity checks into a stable
// connected/disconnected state.
package health

import "time"

// DefaultWindow is how long a raw reading must hold before it is reported.
const DefaultWindow = 500 * time.Millisecond

// Debouncer reports a change only after the raw input has disagreed with the
// reported state continuously for the window. The same window applies in
// both directions. It starts disconnected, and the window is measured from
// construction, so a healthy channel is reported after one full window.
//
// A Debouncer is used from a single control cycle and is not safe for
// concurrent use.
type Debouncer struct {
	window   time.Duration
	now      func() time.Time
	state    bool
	lastSeen time.Time
}

type Option func(*Debouncer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Debouncer) {
		d.now = now
	}
}

func NewDebouncer(window time.Duration, opts ...Option) *Debouncer {
	d := &Debouncer{window: window, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	d.lastSeen = d.now()

	return d
}

// Calculate feeds one raw reading and returns the debounced state.
func (d *Debouncer) Calculate(raw bool) bool {
	now := d.now()
	if raw == d.state {
		d.lastSeen = now
		return d.state
	}

	if now.Sub(d.lastSeen) >= d.window {
		d.state = raw
		d.lastSeen = now
	}

	return d.state
}

// State returns the last reported state without feeding a reading.
func (d *Debouncer) State() bool {
	return d.state
}

func (d *Debouncer) Window() time.Duration {
	return d.window
}
