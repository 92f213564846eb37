package device

import "codeberg.org/mutker/swervectl/internal/errors"

const (
	// Bus Errors
	ErrNoAck           = errors.ErrorCode("device_no_ack")
	ErrRefreshFailed   = errors.ErrorCode("device_refresh_failed")
	ErrControlRejected = errors.ErrorCode("device_control_rejected")

	// Retry Errors
	ErrRetriesExhausted = errors.ErrorCode("device_retries_exhausted")

	// Signal Errors
	ErrUnknownSignal = errors.ErrorCode("device_unknown_signal")
	ErrForeignSignal = errors.ErrorCode("device_foreign_signal")
)
