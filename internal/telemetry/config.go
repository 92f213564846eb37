package telemetry

import (
	"time"

	"codeberg.org/mutker/swervectl/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm   = 0o755
	defaultDBPath    = "/var/lib/swervectl/telemetry.db"
	defaultBackupDir = "/var/lib/swervectl/backups"

	defaultBatchSize     = 50
	defaultFlushInterval = time.Second
	defaultMaxBuffered   = 500
)

type Config struct {
	DBPath        string
	BackupDir     string
	Enabled       bool
	BatchSize     int
	FlushInterval time.Duration
	// MaxBuffered caps records held in memory while the database is
	// unwritable. The oldest are dropped first.
	MaxBuffered int
}

func DefaultConfig() Config {
	return Config{
		DBPath:        defaultDBPath,
		BackupDir:     defaultBackupDir,
		Enabled:       false, // Disabled by default
		BatchSize:     defaultBatchSize,
		FlushInterval: defaultFlushInterval,
		MaxBuffered:   defaultMaxBuffered,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate paths if recording is enabled
	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 1 {
		return errFactory.WithData(ErrInvalidConfig, "batch size must be at least 1")
	}
	if c.FlushInterval < 0 {
		return errFactory.WithData(ErrInvalidConfig, "flush interval must not be negative")
	}
	if c.MaxBuffered < c.BatchSize {
		return errFactory.WithData(ErrInvalidConfig, "max buffered must be at least the batch size")
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
