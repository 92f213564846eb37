package errors_test

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/swervectl/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("bus timeout")
	err := errors.New().Wrap(errors.ErrOperationFailed, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, errors.ErrOperationFailed, err.Code())
	assert.Contains(t, err.Error(), "bus timeout")
	assert.Contains(t, err.Error(), string(errors.ErrOperationFailed))
}

func TestIsMatchesByCode(t *testing.T) {
	sentinel := errors.New().New(errors.ErrTimeout)
	err := fmt.Errorf("apply: %w", errors.New().WithData(errors.ErrTimeout, "drive 1"))

	assert.ErrorIs(t, err, sentinel)
	assert.NotErrorIs(t, err, errors.New().New(errors.ErrInternal))
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", errors.New().New(errors.ErrInvalidConfig))

	assert.Equal(t, errors.ErrInvalidConfig, errors.CodeOf(err))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(fmt.Errorf("plain")))
}

func TestHasCodeWalksChain(t *testing.T) {
	inner := errors.New().New(errors.ErrInvalidLogLevel)
	outer := errors.New().Wrap(errors.ErrInvalidConfig, inner)

	assert.True(t, errors.HasCode(outer, errors.ErrInvalidLogLevel))
	assert.True(t, errors.HasCode(outer, errors.ErrInvalidConfig))
	assert.False(t, errors.HasCode(outer, errors.ErrTimeout))
}

func TestWithMessageOverridesDefault(t *testing.T) {
	err := errors.New().WithMessage(errors.ErrInternal, "queue corrupted")

	assert.Contains(t, err.Error(), "queue corrupted")
	assert.NotContains(t, err.Error(), errors.GetErrorMessage(errors.ErrInternal))
}

func TestGetErrorMessage(t *testing.T) {
	assert.Equal(t, "Operation timed out", errors.GetErrorMessage(errors.ErrTimeout))
	assert.Equal(t, "control_cycle_failed", errors.GetErrorMessage(errors.ErrorCode("control_cycle_failed")),
		"codes without a message fall back to the code")
}
