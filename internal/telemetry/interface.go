package telemetry

import (
	"context"
	"time"

	"codeberg.org/mutker/swervectl/internal/module"
)

// Recorder persists one record per module per control cycle.
type Recorder interface {
	Record(ctx context.Context, record *ModuleRecord) error
	Close() error
}

// Repository defines the interface for telemetry storage
type Repository interface {
	Store(record *ModuleRecord) error
	Close() error
}

// ModuleRecord is what gets stored for one module in one cycle.
type ModuleRecord struct {
	RecordedAt time.Time
	Module     string
	Snapshot   module.Snapshot
}

func NewModuleRecord(name string, at time.Time, snapshot module.Snapshot) *ModuleRecord {
	return &ModuleRecord{
		RecordedAt: at,
		Module:     name,
		Snapshot:   snapshot,
	}
}
