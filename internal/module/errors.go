package module

import "codeberg.org/mutker/swervectl/internal/errors"

const (
	ErrInvalidConfig   = errors.ErrInvalidConfig
	ErrMissingHardware = errors.ErrorCode("module_missing_hardware")
	ErrRegisterFailed  = errors.ErrorCode("module_register_failed")
	ErrMissingPool     = errors.ErrorCode("module_missing_pool")

	ErrInvalidCommand = errors.ErrorCode("module_invalid_command")
	ErrCommandFailed  = errors.ErrorCode("module_command_failed")
	ErrConfigFailed   = errors.ErrorCode("module_config_failed")
)
