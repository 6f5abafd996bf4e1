package errors

import (
	"net/http"
	"testing"

	"accounts/internal/errors"

	"github.com/stretchr/testify/assert"
)

func TestBaseError_WrapMessageKeepsIdentity(t *testing.T) {
	err := ErrUserAlreadyExists.WrapMessage("email already exists")

	assert.True(t, errors.Is(err, ErrUserAlreadyExists))
	assert.False(t, errors.Is(err, ErrUserNotFound))

	var appErr AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusConflict, appErr.HTTPCode())
	assert.Equal(t, "USER_ALREADY_EXISTS", appErr.ErrorCode())
}

func TestNewValidationError(t *testing.T) {
	fields := []FieldError{{Field: "email", Rule: "email", Message: "email must be a valid email address"}}
	err := NewValidationError(fields)

	assert.True(t, errors.Is(err, ErrValidationFailed))
	assert.Equal(t, http.StatusBadRequest, err.HTTPCode())
	assert.Equal(t, fields, err.Details())
	assert.Nil(t, ErrValidationFailed.Details())
}

func TestDatabaseExecuteError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewDatabaseExecuteError(cause, "failed to list users")

	assert.Equal(t, http.StatusInternalServerError, err.HTTPCode())
	assert.Equal(t, "DATABASE_EXECUTE_FAILED", err.ErrorCode())
	assert.Equal(t, "failed to list users", err.Details())
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection reset")
}
