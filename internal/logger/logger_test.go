package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"codeberg.org/mutker/swervectl/internal/errors"
	"codeberg.org/mutker/swervectl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, logger.DebugLevel)

	logger.With("component", "odometry").With("module", "front_left").Info().Msg("started")

	line := decode(t, &buf)
	assert.Equal(t, "odometry", line["component"])
	assert.Equal(t, "front_left", line["module"])
	assert.Equal(t, "started", line["message"])
	assert.Equal(t, "info", line["level"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, logger.WarnLevel)

	logger.Debug().Msg("hidden")
	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, logger.DebugLevel)

	err := errors.New().WithMessage(errors.ErrTimeout, "apply timed out")
	logger.Get().ErrorWithCode(err).Msg("config write failed")

	line := decode(t, &buf)
	assert.Equal(t, string(errors.ErrTimeout), line["error_code"])
	assert.Contains(t, line["error_message"], "apply timed out")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logger.LogLevel
		ok   bool
	}{
		{"debug", logger.DebugLevel, true},
		{"info", logger.InfoLevel, true},
		{"warning", logger.WarnLevel, true},
		{"error", logger.ErrorLevel, true},
		{"verbose", logger.InfoLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := logger.ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
