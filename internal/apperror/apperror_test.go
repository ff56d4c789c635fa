package apperror_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oneprompteu/oneprompt/internal/apperror"
)

func TestSentinelMatching(t *testing.T) {
	err := apperror.NotFound("run", "abc123")

	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.False(t, errors.Is(err, apperror.ErrValidation))
	assert.Equal(t, "run not found with id abc123", err.Error())
}

func TestWrappedMatching(t *testing.T) {
	// Service layers wrap with context; matching must survive the chain.
	err := fmt.Errorf("listing runs: %w", apperror.ValidationFailed("limit", "limit out of range"))

	assert.True(t, errors.Is(err, apperror.ErrValidation))

	var appErr *apperror.AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, "limit", appErr.Field)
	assert.Equal(t, "limit out of range", appErr.Message)
}

func TestForbidden(t *testing.T) {
	err := apperror.Forbidden("caller may not read this session")
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
}
