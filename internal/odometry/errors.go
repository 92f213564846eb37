package odometry

import "codeberg.org/mutker/swervectl/internal/errors"

const (
	ErrInvalidConfig  = errors.ErrInvalidConfig
	ErrAlreadyStarted = errors.ErrorCode("odometry_already_started")
	ErrNilSource      = errors.ErrorCode("odometry_nil_source")
	ErrForeignQueue   = errors.ErrorCode("odometry_foreign_queue")
)
