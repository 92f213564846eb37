// Package config loads daemon settings from defaults, a TOML file, the
// environment and command line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/swervectl/internal/device"
	"codeberg.org/mutker/swervectl/internal/errors"
	"codeberg.org/mutker/swervectl/internal/logger"
	"codeberg.org/mutker/swervectl/internal/module"
	"codeberg.org/mutker/swervectl/internal/odometry"
	"codeberg.org/mutker/swervectl/internal/telemetry"
	"codeberg.org/mutker/swervectl/internal/units"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultEnvPrefix  = "SWERVECTL"
	defaultConfigName = "swervectl"
	defaultConfigType = "toml"
	systemConfigDir   = "/etc/swervectl"
)

type ModuleConfig struct {
	Name            string  `mapstructure:"name"`
	DriveID         int     `mapstructure:"drive_id"`
	TurnID          int     `mapstructure:"turn_id"`
	EncoderID       int     `mapstructure:"encoder_id"`
	EncoderOffset   float64 `mapstructure:"encoder_offset"`
	TurnInverted    bool    `mapstructure:"turn_inverted"`
	EncoderInverted bool    `mapstructure:"encoder_inverted"`
}

type Config struct {
	LogLevel     LogLevel `mapstructure:"log_level"`
	LogFile      string   `mapstructure:"log_file"`
	LogMaxSizeMB int      `mapstructure:"log_max_size_mb"`
	PIDFile      string   `mapstructure:"pid_file"`

	ControlFrequency  float64       `mapstructure:"control_frequency"`
	OdometryFrequency float64       `mapstructure:"odometry_frequency"`
	QueueCapacity     int           `mapstructure:"queue_capacity"`
	Debounce          time.Duration `mapstructure:"debounce"`
	ConfigAttempts    int           `mapstructure:"config_attempts"`
	ConfigTimeout     time.Duration `mapstructure:"config_timeout"`
	BrakeWorkers      int           `mapstructure:"brake_workers"`
	BrakeQueue        int           `mapstructure:"brake_queue"`

	DriveReduction    float64        `mapstructure:"drive_reduction"`
	TurnReduction     float64        `mapstructure:"turn_reduction"`
	DriveCurrentLimit float64        `mapstructure:"drive_current_limit"`
	TurnCurrentLimit  float64        `mapstructure:"turn_current_limit"`
	Modules           []ModuleConfig `mapstructure:"modules"`

	TelemetryEnabled       bool          `mapstructure:"telemetry_enabled"`
	TelemetryDB            string        `mapstructure:"telemetry_db"`
	TelemetryBackupDir     string        `mapstructure:"telemetry_backup_dir"`
	TelemetryBatchSize     int           `mapstructure:"telemetry_batch_size"`
	TelemetryFlushInterval time.Duration `mapstructure:"telemetry_flush_interval"`
	TelemetryMaxBuffered   int           `mapstructure:"telemetry_max_buffered"`

	MetricsAddr string `mapstructure:"metrics_addr"`
}

func defaultModules() []map[string]any {
	names := []string{"front_left", "front_right", "back_left", "back_right"}
	out := make([]map[string]any, len(names))
	for i, name := range names {
		out[i] = map[string]any{
			"name":       name,
			"drive_id":   3*i + 1,
			"turn_id":    3*i + 2,
			"encoder_id": 3*i + 3,
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", string(LogLevelInfo))
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("pid_file", filepath.Join(os.TempDir(), "swervectl.pid"))

	v.SetDefault("control_frequency", module.DefaultControlFrequency)
	v.SetDefault("odometry_frequency", odometry.DefaultFrequency)
	v.SetDefault("queue_capacity", odometry.DefaultQueueCapacity)
	v.SetDefault("debounce", "500ms")
	v.SetDefault("config_attempts", device.DefaultAttempts)
	v.SetDefault("config_timeout", "250ms")
	v.SetDefault("brake_workers", 4)
	v.SetDefault("brake_queue", 16)

	v.SetDefault("drive_reduction", module.DefaultDriveReduction)
	v.SetDefault("turn_reduction", module.DefaultTurnReduction)
	v.SetDefault("drive_current_limit", module.DefaultDriveCurrentLimit)
	v.SetDefault("turn_current_limit", module.DefaultTurnCurrentLimit)
	v.SetDefault("modules", defaultModules())

	telemetryDefaults := telemetry.DefaultConfig()
	v.SetDefault("telemetry_enabled", telemetryDefaults.Enabled)
	v.SetDefault("telemetry_db", telemetryDefaults.DBPath)
	v.SetDefault("telemetry_backup_dir", telemetryDefaults.BackupDir)
	v.SetDefault("telemetry_batch_size", telemetryDefaults.BatchSize)
	v.SetDefault("telemetry_flush_interval", telemetryDefaults.FlushInterval.String())
	v.SetDefault("telemetry_max_buffered", telemetryDefaults.MaxBuffered)

	v.SetDefault("metrics_addr", "")
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("swervectl", pflag.ContinueOnError)

	fs.String("config", "", "Path to the configuration file")
	fs.String("log-level", string(LogLevelInfo), "Log level (debug, info, warning, error)")
	fs.String("log-file", "", "Write logs to this file instead of stdout")
	fs.String("pid-file", filepath.Join(os.TempDir(), "swervectl.pid"), "Path to the PID file")
	fs.Float64("control-frequency", module.DefaultControlFrequency, "Control cycle frequency in Hz")
	fs.Float64("odometry-frequency", odometry.DefaultFrequency, "Odometry sampling frequency in Hz")
	fs.Int("queue-capacity", odometry.DefaultQueueCapacity, "Samples buffered per odometry queue")
	fs.Bool("telemetry", false, "Record module inputs to the telemetry database")
	fs.String("telemetry-db", telemetry.DefaultConfig().DBPath, "Path to the telemetry database")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address")

	return fs
}

var flagKeys = map[string]string{
	"log-level":          "log_level",
	"log-file":           "log_file",
	"pid-file":           "pid_file",
	"control-frequency":  "control_frequency",
	"odometry-frequency": "odometry_frequency",
	"queue-capacity":     "queue_capacity",
	"telemetry":          "telemetry_enabled",
	"telemetry-db":       "telemetry_db",
	"metrics-addr":       "metrics_addr",
}

// Load reads the configuration and validates it.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	for flagName, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flagName)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, configPath(fs, o)); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// configPath resolves the explicit config file: --config, then the
// <PREFIX>_CONFIG environment variable, then WithConfigFile.
func configPath(fs *pflag.FlagSet, o *options) string {
	if path, _ := fs.GetString("config"); path != "" {
		return path
	}
	if path := os.Getenv(o.envPrefix + "_CONFIG"); path != "" {
		return path
	}
	return o.configPath
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(defaultConfigName)
	v.SetConfigType(defaultConfigType)
	v.AddConfigPath(systemConfigDir)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

// Validate checks every setting and reports the first invalid one.
func (c *Config) Validate() error {
	errFactory := errors.New()

	invalid := func(code errors.ErrorCode, field string, value any, reason string) error {
		return errFactory.WithData(code, FieldError{Field: field, Value: value, Reason: reason})
	}

	if !c.LogLevel.IsValid() {
		return invalid(errors.ErrInvalidLogLevel, "log_level", c.LogLevel, "must be debug, info, warning or error")
	}
	if c.LogMaxSizeMB < 1 {
		return invalid(errors.ErrInvalidConfig, "log_max_size_mb", c.LogMaxSizeMB, "must be at least 1")
	}
	if !positive(c.ControlFrequency) {
		return invalid(errors.ErrInvalidFrequency, "control_frequency", c.ControlFrequency, "must be positive")
	}
	if !positive(c.OdometryFrequency) || c.OdometryFrequency <= c.ControlFrequency {
		return invalid(errors.ErrInvalidFrequency, "odometry_frequency", c.OdometryFrequency, "must exceed control_frequency")
	}
	if c.QueueCapacity < 1 {
		return invalid(errors.ErrInvalidConfig, "queue_capacity", c.QueueCapacity, "must be at least 1")
	}
	if c.Debounce < 0 {
		return invalid(errors.ErrInvalidConfig, "debounce", c.Debounce, "must not be negative")
	}
	if c.ConfigAttempts < 1 {
		return invalid(errors.ErrInvalidConfig, "config_attempts", c.ConfigAttempts, "must be at least 1")
	}
	if c.ConfigTimeout <= 0 {
		return invalid(errors.ErrInvalidConfig, "config_timeout", c.ConfigTimeout, "must be positive")
	}
	if c.BrakeWorkers < 1 {
		return invalid(errors.ErrInvalidConfig, "brake_workers", c.BrakeWorkers, "must be at least 1")
	}
	if c.BrakeQueue < 1 {
		return invalid(errors.ErrInvalidConfig, "brake_queue", c.BrakeQueue, "must be at least 1")
	}

	for field, value := range map[string]float64{
		"drive_reduction":     c.DriveReduction,
		"turn_reduction":      c.TurnReduction,
		"drive_current_limit": c.DriveCurrentLimit,
		"turn_current_limit":  c.TurnCurrentLimit,
	} {
		if !positive(value) {
			return invalid(errors.ErrInvalidConfig, field, value, "must be positive")
		}
	}

	if err := c.validateModules(invalid); err != nil {
		return err
	}

	if c.TelemetryEnabled {
		if c.TelemetryDB == "" {
			return invalid(errors.ErrInvalidConfig, "telemetry_db", c.TelemetryDB, "required when telemetry is enabled")
		}
		if c.TelemetryBatchSize < 1 {
			return invalid(errors.ErrInvalidConfig, "telemetry_batch_size", c.TelemetryBatchSize, "must be at least 1")
		}
		if c.TelemetryFlushInterval < 0 {
			return invalid(errors.ErrInvalidConfig, "telemetry_flush_interval", c.TelemetryFlushInterval, "must not be negative")
		}
		if c.TelemetryMaxBuffered < c.TelemetryBatchSize {
			return invalid(errors.ErrInvalidConfig, "telemetry_max_buffered", c.TelemetryMaxBuffered, "must be at least telemetry_batch_size")
		}
	}

	return nil
}

func (c *Config) validateModules(invalid func(errors.ErrorCode, string, any, string) error) error {
	if len(c.Modules) == 0 {
		return invalid(errors.ErrInvalidConfig, "modules", nil, "at least one module is required")
	}

	names := make(map[string]struct{}, len(c.Modules))
	ids := make(map[int]string, 3*len(c.Modules))

	for i, m := range c.Modules {
		field := fmt.Sprintf("modules[%d]", i)
		if m.Name == "" {
			return invalid(errors.ErrInvalidConfig, field+".name", m.Name, "must not be empty")
		}
		if _, dup := names[m.Name]; dup {
			return invalid(errors.ErrInvalidConfig, field+".name", m.Name, "duplicate module name")
		}
		names[m.Name] = struct{}{}

		if math.IsNaN(m.EncoderOffset) || math.IsInf(m.EncoderOffset, 0) {
			return invalid(errors.ErrInvalidConfig, field+".encoder_offset", m.EncoderOffset, "must be finite")
		}

		for key, id := range map[string]int{"drive_id": m.DriveID, "turn_id": m.TurnID, "encoder_id": m.EncoderID} {
			if id < 0 {
				return invalid(errors.ErrInvalidConfig, field+"."+key, id, "must not be negative")
			}
			if owner, dup := ids[id]; dup {
				return invalid(errors.ErrInvalidConfig, field+"."+key, id, "already used by "+owner)
			}
			ids[id] = m.Name + "." + key
		}
	}

	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// LoggerOptions returns the logger settings. isService selects the
// timestamp-free console format.
func (c *Config) LoggerOptions(isService bool) logger.Options {
	level, _ := logger.ParseLevel(c.LogLevel.String())
	return logger.Options{
		Level:     level,
		File:      c.LogFile,
		MaxSizeMB: c.LogMaxSizeMB,
		IsService: isService,
	}
}

func (c *Config) ThreadConfig() odometry.ThreadConfig {
	return odometry.ThreadConfig{
		Frequency:     c.OdometryFrequency,
		QueueCapacity: c.QueueCapacity,
	}
}

func (c *Config) TelemetryConfig() telemetry.Config {
	return telemetry.Config{
		DBPath:        c.TelemetryDB,
		BackupDir:     c.TelemetryBackupDir,
		Enabled:       c.TelemetryEnabled,
		BatchSize:     c.TelemetryBatchSize,
		FlushInterval: c.TelemetryFlushInterval,
		MaxBuffered:   c.TelemetryMaxBuffered,
	}
}

// ModuleConfigs expands the per-module entries with the shared drivetrain
// settings.
func (c *Config) ModuleConfigs() []module.Config {
	out := make([]module.Config, len(c.Modules))
	for i, m := range c.Modules {
		out[i] = module.Config{
			Name:              m.Name,
			EncoderID:         m.EncoderID,
			EncoderOffset:     units.FromRotations(m.EncoderOffset),
			TurnInverted:      m.TurnInverted,
			EncoderInverted:   m.EncoderInverted,
			DriveReduction:    c.DriveReduction,
			TurnReduction:     c.TurnReduction,
			DriveCurrentLimit: c.DriveCurrentLimit,
			TurnCurrentLimit:  c.TurnCurrentLimit,
			ControlFrequency:  c.ControlFrequency,
			Debounce:          c.Debounce,
			Retry:             device.Retry{Attempts: c.ConfigAttempts, Timeout: c.ConfigTimeout},
		}
	}
	return out
}
