package telemetry

import (
	"database/sql"

	"codeberg.org/mutker/swervectl/internal/errors"
	"codeberg.org/mutker/swervectl/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS module_inputs (
	       id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	       recorded_at            INTEGER NOT NULL,
	       module                 TEXT NOT NULL,
	       drive_connected        INTEGER NOT NULL CHECK (drive_connected IN (0, 1)),
	       drive_position_rad     REAL NOT NULL,
	       drive_velocity_rad_s   REAL NOT NULL,
	       drive_applied_volts    REAL NOT NULL,
	       drive_current_amps     REAL NOT NULL,
	       turn_connected         INTEGER NOT NULL CHECK (turn_connected IN (0, 1)),
	       turn_encoder_connected INTEGER NOT NULL CHECK (turn_encoder_connected IN (0, 1)),
	       turn_absolute_rad      REAL NOT NULL,
	       turn_position_rad      REAL NOT NULL,
	       turn_velocity_rad_s    REAL NOT NULL,
	       turn_applied_volts     REAL NOT NULL,
	       turn_current_amps      REAL NOT NULL,
	       odometry_samples       INTEGER NOT NULL,
	       dropped_samples        INTEGER NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS odometry_samples (
	       id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	       module             TEXT NOT NULL,
	       sample_time        REAL NOT NULL,
	       drive_position_rad REAL NOT NULL,
	       turn_position_rad  REAL NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS odometry_samples_module_time
	       ON odometry_samples (module, sample_time);`

	insertModuleInputsSQL = `
    INSERT INTO module_inputs (
        recorded_at, module,
        drive_connected, drive_position_rad, drive_velocity_rad_s, drive_applied_volts, drive_current_amps,
        turn_connected, turn_encoder_connected, turn_absolute_rad, turn_position_rad,
        turn_velocity_rad_s, turn_applied_volts, turn_current_amps,
        odometry_samples, dropped_samples
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertOdometrySampleSQL = `
    INSERT INTO odometry_samples (
        module, sample_time, drive_position_rad, turn_position_rad
    ) VALUES (?, ?, ?, ?)`
)

var schemaTables = []string{"odometry_samples", "module_inputs", "schema_versions"}

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version, or 0 for an empty
// database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}
