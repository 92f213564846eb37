package module

import (
	"sync"

	"codeberg.org/mutker/swervectl/internal/device"
)

// guardedConfig is a motor configuration shared by the control cycle and
// worker pool tasks. A change and the bus write that publishes it happen
// under one lock, so the device always receives the state as of that lock.
type guardedConfig struct {
	mu  sync.Mutex
	cfg device.MotorConfig
}

func newGuardedConfig(cfg device.MotorConfig) *guardedConfig {
	return &guardedConfig{cfg: cfg}
}

// Get returns a copy.
func (g *guardedConfig) Get() device.MotorConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// Update applies mutate, then calls write with the resulting configuration
// while still holding the lock.
func (g *guardedConfig) Update(mutate func(*device.MotorConfig), write func(device.MotorConfig) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if mutate != nil {
		mutate(&g.cfg)
	}

	return write(g.cfg)
}
