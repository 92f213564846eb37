package telemetry_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/swervectl/internal/errors"
	"codeberg.org/mutker/swervectl/internal/logger"
	"codeberg.org/mutker/swervectl/internal/module"
	"codeberg.org/mutker/swervectl/internal/telemetry"
	"codeberg.org/mutker/swervectl/internal/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(samples int) module.Snapshot {
	s := module.Snapshot{
		DriveConnected:       true,
		DrivePositionRad:     1.5,
		TurnConnected:        true,
		TurnEncoderConnected: true,
		TurnAbsolutePosition: units.FromRotations(0.05),
		TurnPosition:         units.FromRotations(0.05),
		DroppedSamples:       2,
	}
	for i := 0; i < samples; i++ {
		s.OdometryTimestamps = append(s.OdometryTimestamps, float64(i)*0.004)
		s.OdometryDrivePositionsRad = append(s.OdometryDrivePositionsRad, float64(i))
		s.OdometryTurnPositions = append(s.OdometryTurnPositions, units.FromRadians(float64(i)/10))
	}
	return s
}

func countRows(t *testing.T, path, table string) int {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func testConfig(t *testing.T) telemetry.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = filepath.Join(dir, "telemetry.db")
	cfg.BackupDir = filepath.Join(dir, "backups")
	cfg.BatchSize = 2
	cfg.FlushInterval = 0
	return cfg
}

func TestRecorderPersistsEverySample(t *testing.T) {
	cfg := testConfig(t)
	rec, err := telemetry.NewRecorder(cfg, logger.Get())
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	require.NoError(t, rec.Record(ctx, telemetry.NewModuleRecord("front_left", now, snapshot(5))))
	require.NoError(t, rec.Record(ctx, telemetry.NewModuleRecord("front_right", now, snapshot(4))))
	require.NoError(t, rec.Record(ctx, telemetry.NewModuleRecord("front_left", now.Add(20*time.Millisecond), snapshot(0))))
	require.NoError(t, rec.Close())

	assert.Equal(t, 3, countRows(t, cfg.DBPath, "module_inputs"))
	assert.Equal(t, 9, countRows(t, cfg.DBPath, "odometry_samples"))
}

func TestRecorderFlushesOnInterval(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 100
	cfg.FlushInterval = 10 * time.Millisecond

	rec, err := telemetry.NewRecorder(cfg, logger.Get())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	require.NoError(t, rec.Record(context.Background(), telemetry.NewModuleRecord("back_left", time.Now(), snapshot(3))))

	assert.Eventually(t, func() bool {
		return countRows(t, cfg.DBPath, "odometry_samples") == 3
	}, time.Second, 10*time.Millisecond)
}

func TestRecordRejectsMisalignedSnapshot(t *testing.T) {
	rec, err := telemetry.NewRecorder(testConfig(t), logger.Get())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	s := snapshot(3)
	s.OdometryTurnPositions = s.OdometryTurnPositions[:2]

	err = rec.Record(context.Background(), telemetry.NewModuleRecord("front_left", time.Now(), s))
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidRecord))

	err = rec.Record(context.Background(), nil)
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidRecord))
}

func TestRecordAfterClose(t *testing.T) {
	rec, err := telemetry.NewRecorder(testConfig(t), logger.Get())
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	err = rec.Record(context.Background(), telemetry.NewModuleRecord("front_left", time.Now(), snapshot(1)))
	assert.True(t, errors.HasCode(err, telemetry.ErrRecorderClosed))
	assert.NoError(t, rec.Close(), "close is idempotent")
}

func TestDisabledRecorderIsNoop(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	cfg.DBPath = ""

	rec, err := telemetry.NewRecorder(cfg, logger.Get())
	require.NoError(t, err)
	assert.NoError(t, rec.Record(context.Background(), telemetry.NewModuleRecord("front_left", time.Now(), snapshot(2))))
	assert.NoError(t, rec.Close())
}

func TestConfigValidation(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBPath = ""
	_, err := telemetry.NewRecorder(cfg, logger.Get())
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidDBPath))

	cfg = testConfig(t)
	cfg.BatchSize = 0
	_, err = telemetry.NewRecorder(cfg, logger.Get())
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidConfig))

	cfg = testConfig(t)
	cfg.MaxBuffered = cfg.BatchSize - 1
	_, err = telemetry.NewRecorder(cfg, logger.Get())
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidConfig))
}

func TestSchemaMismatchIsBackedUp(t *testing.T) {
	cfg := testConfig(t)

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions (version, applied_at) VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	rec, err := telemetry.NewRecorder(cfg, logger.Get())
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	backups, err := os.ReadDir(cfg.BackupDir)
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	db, err = sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	version, err := telemetry.GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, telemetry.SchemaVersion, version)
}
