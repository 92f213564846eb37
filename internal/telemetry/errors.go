package telemetry

import "codeberg.org/mutker/swervectl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("telemetry_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("telemetry_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("telemetry_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("telemetry_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("telemetry_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed

	// Recording Errors
	ErrInvalidRecord   = errors.ErrorCode("telemetry_invalid_record")
	ErrRecordingFailed = errors.ErrorCode("telemetry_recording_failed")
	ErrRecorderClosed  = errors.ErrorCode("telemetry_recorder_closed")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)
