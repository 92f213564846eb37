package health_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/swervectl/internal/health"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newDebouncer() (*health.Debouncer, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	return health.NewDebouncer(health.DefaultWindow, health.WithClock(clock.now)), clock
}

func TestStartsDisconnected(t *testing.T) {
	d, _ := newDebouncer()

	assert.False(t, d.State())
	assert.False(t, d.Calculate(true))
}

func TestConnectsAfterWindow(t *testing.T) {
	d, clock := newDebouncer()

	for i := 0; i < 24; i++ {
		clock.advance(20 * time.Millisecond)
		assert.False(t, d.Calculate(true), "cycle %d", i)
	}

	clock.advance(20 * time.Millisecond)
	assert.True(t, d.Calculate(true))
}

func TestDisconnectsAfterWindow(t *testing.T) {
	d, clock := newDebouncer()
	clock.advance(health.DefaultWindow)
	assert.True(t, d.Calculate(true))

	clock.advance(health.DefaultWindow - time.Millisecond)
	assert.True(t, d.Calculate(false))

	clock.advance(time.Millisecond)
	assert.False(t, d.Calculate(false))
}

func TestFastFlappingNeverChangesState(t *testing.T) {
	d, clock := newDebouncer()
	clock.advance(health.DefaultWindow)
	assert.True(t, d.Calculate(true))

	raw := false
	for i := 0; i < 500; i++ {
		clock.advance(100 * time.Millisecond)
		assert.True(t, d.Calculate(raw), "cycle %d", i)
		raw = !raw
	}
}

func TestFlappingWhileDisconnectedStaysDisconnected(t *testing.T) {
	d, clock := newDebouncer()

	raw := true
	for i := 0; i < 500; i++ {
		clock.advance(250 * time.Millisecond)
		assert.False(t, d.Calculate(raw), "cycle %d", i)
		raw = !raw
	}
}
