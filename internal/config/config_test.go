package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/swervectl/internal/config"
	"codeberg.org/mutker/swervectl/internal/errors"
	"codeberg.org/mutker/swervectl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "swervectl.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	// Ensure no config file is used
	t.Setenv("SWERVECTL_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.LogLevelInfo, cfg.LogLevel)
	assert.Equal(t, 50.0, cfg.ControlFrequency)
	assert.Equal(t, 250.0, cfg.OdometryFrequency)
	assert.Equal(t, 20, cfg.QueueCapacity)
	assert.Equal(t, 500*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 5, cfg.ConfigAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.ConfigTimeout)
	assert.Equal(t, 4, cfg.BrakeWorkers)
	assert.Equal(t, 16, cfg.BrakeQueue)
	assert.Equal(t, 80.0, cfg.DriveCurrentLimit)
	assert.Equal(t, 40.0, cfg.TurnCurrentLimit)
	assert.False(t, cfg.TelemetryEnabled)
	assert.Equal(t, 500, cfg.TelemetryMaxBuffered)
	assert.Empty(t, cfg.MetricsAddr)

	require.Len(t, cfg.Modules, 4)
	names := make([]string, len(cfg.Modules))
	for i, m := range cfg.Modules {
		names[i] = m.Name
	}
	assert.Equal(t, []string{"front_left", "front_right", "back_left", "back_right"}, names)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"
control_frequency = 100
odometry_frequency = 400
queue_capacity = 40
debounce = "250ms"
config_attempts = 3
telemetry_enabled = true
telemetry_db = "/tmp/swerve.db"
metrics_addr = ":9090"

[[modules]]
name = "left"
drive_id = 10
turn_id = 11
encoder_id = 12
encoder_offset = 0.25
turn_inverted = true

[[modules]]
name = "right"
drive_id = 20
turn_id = 21
encoder_id = 22
`)
	t.Setenv("SWERVECTL_CONFIG", path)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.LogLevelDebug, cfg.LogLevel)
	assert.Equal(t, 100.0, cfg.ControlFrequency)
	assert.Equal(t, 400.0, cfg.OdometryFrequency)
	assert.Equal(t, 40, cfg.QueueCapacity)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 3, cfg.ConfigAttempts)
	assert.True(t, cfg.TelemetryEnabled)
	assert.Equal(t, "/tmp/swerve.db", cfg.TelemetryDB)
	assert.Equal(t, ":9090", cfg.MetricsAddr)

	require.Len(t, cfg.Modules, 2)
	assert.Equal(t, config.ModuleConfig{
		Name:          "left",
		DriveID:       10,
		TurnID:        11,
		EncoderID:     12,
		EncoderOffset: 0.25,
		TurnInverted:  true,
	}, cfg.Modules[0])
}

func TestFlagsOverrideFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"
control_frequency = 100
odometry_frequency = 400
`)
	t.Setenv("SWERVECTL_CONFIG", "")
	t.Setenv("SWERVECTL_ODOMETRY_FREQUENCY", "300")

	cfg, err := config.Load(
		config.WithConfigFile(path),
		config.WithArgs([]string{"--log-level", "error", "--metrics-addr", "127.0.0.1:9100"}),
	)
	require.NoError(t, err)

	assert.Equal(t, config.LogLevelError, cfg.LogLevel, "flag beats file")
	assert.Equal(t, 300.0, cfg.OdometryFrequency, "env beats file")
	assert.Equal(t, 100.0, cfg.ControlFrequency, "file beats default")
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
}

func TestConfigFlag(t *testing.T) {
	path := writeConfig(t, `queue_capacity = 7`)
	t.Setenv("SWERVECTL_CONFIG", "")

	cfg, err := config.Load(config.WithArgs([]string{"--config", path}))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.QueueCapacity)
}

func TestMissingExplicitFile(t *testing.T) {
	t.Setenv("SWERVECTL_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	_, err := config.Load()
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestUnknownFlag(t *testing.T) {
	t.Setenv("SWERVECTL_CONFIG", "")

	_, err := config.Load(config.WithArgs([]string{"--no-such-flag"}))
	assert.True(t, errors.HasCode(err, errors.ErrBindFlags))
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    errors.ErrorCode
		field   string
	}{
		{"log level", `log_level = "verbose"`, errors.ErrInvalidLogLevel, "log_level"},
		{"control frequency", `control_frequency = 0`, errors.ErrInvalidFrequency, "control_frequency"},
		{"odometry slower than control", "control_frequency = 100\nodometry_frequency = 100", errors.ErrInvalidFrequency, "odometry_frequency"},
		{"queue capacity", `queue_capacity = 0`, errors.ErrInvalidConfig, "queue_capacity"},
		{"attempts", `config_attempts = 0`, errors.ErrInvalidConfig, "config_attempts"},
		{"timeout", `config_timeout = "0s"`, errors.ErrInvalidConfig, "config_timeout"},
		{"drive reduction", `drive_reduction = -1.0`, errors.ErrInvalidConfig, "drive_reduction"},
		{"telemetry db", "telemetry_enabled = true\ntelemetry_db = \"\"", errors.ErrInvalidConfig, "telemetry_db"},
		{"telemetry buffer", "telemetry_enabled = true\ntelemetry_batch_size = 50\ntelemetry_max_buffered = 10", errors.ErrInvalidConfig, "telemetry_max_buffered"},
		{
			"duplicate module",
			"[[modules]]\nname = \"a\"\ndrive_id = 1\nturn_id = 2\nencoder_id = 3\n[[modules]]\nname = \"a\"\ndrive_id = 4\nturn_id = 5\nencoder_id = 6",
			errors.ErrInvalidConfig, "modules[1].name",
		},
		{
			"shared device id",
			"[[modules]]\nname = \"a\"\ndrive_id = 1\nturn_id = 1\nencoder_id = 3",
			errors.ErrInvalidConfig, "modules[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SWERVECTL_CONFIG", writeConfig(t, tt.content))

			_, err := config.Load()
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))

			var appErr errors.Error
			require.True(t, errors.As(err, &appErr))
			fieldErr, ok := appErr.GetData().(config.FieldError)
			require.True(t, ok)
			assert.Contains(t, fieldErr.Field, tt.field)
		})
	}
}

func TestModuleConfigs(t *testing.T) {
	path := writeConfig(t, `
config_attempts = 2
config_timeout = "100ms"
drive_current_limit = 60.0

[[modules]]
name = "solo"
drive_id = 1
turn_id = 2
encoder_id = 3
encoder_offset = 0.5
encoder_inverted = true
`)
	t.Setenv("SWERVECTL_CONFIG", path)

	cfg, err := config.Load()
	require.NoError(t, err)

	modules := cfg.ModuleConfigs()
	require.Len(t, modules, 1)
	m := modules[0]
	assert.Equal(t, "solo", m.Name)
	assert.Equal(t, 3, m.EncoderID)
	assert.InDelta(t, 0.5, m.EncoderOffset.Rotations(), 1e-9)
	assert.True(t, m.EncoderInverted)
	assert.Equal(t, 60.0, m.DriveCurrentLimit)
	assert.Equal(t, 2, m.Retry.Attempts)
	assert.Equal(t, 100*time.Millisecond, m.Retry.Timeout)
	assert.Equal(t, cfg.ControlFrequency, m.ControlFrequency)
	require.NoError(t, m.Validate())

	thread := cfg.ThreadConfig()
	assert.Equal(t, cfg.OdometryFrequency, thread.Frequency)
	require.NoError(t, thread.Validate())

	assert.Equal(t, logger.WarnLevel, (&config.Config{LogLevel: config.LogLevelWarning}).LoggerOptions(false).Level)
}
