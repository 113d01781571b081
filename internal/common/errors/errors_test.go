package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundHTTPStatusAndMessage(t *testing.T) {
	err := NotFound("agent", "abc-123")
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)
	assert.Equal(t, ErrCodeNotFound, err.Code)
	assert.Equal(t, "agent with id 'abc-123' not found", err.Message)
}

func TestTransitionViolationHTTPStatus(t *testing.T) {
	err := TransitionViolation("illegal transition")
	assert.Equal(t, http.StatusConflict, err.HTTPStatus)
}

func TestCommandTimeoutDistinctFromCommandExecutionFailure(t *testing.T) {
	timeout := CommandTimeout("exceeded deadline")
	exec := CommandExecutionFailure("non-zero exit", errors.New("boom"))
	assert.NotEqual(t, exec.Code, timeout.Code)
	assert.Equal(t, http.StatusGatewayTimeout, timeout.HTTPStatus)
}

func TestErrorMessageIncludesWrappedError(t *testing.T) {
	cause := errors.New("connection refused")
	err := InternalError("failed to connect", cause)
	require.NotEmpty(t, err.Error())
	assert.ErrorIs(t, err.Unwrap(), cause)
}

func TestWrapPreservesAppErrorCodeAndStatus(t *testing.T) {
	inner := NotFound("task", "t1")
	wrapped := Wrap(inner, "while aggregating results")
	assert.Equal(t, ErrCodeNotFound, wrapped.Code)
	assert.Equal(t, http.StatusNotFound, wrapped.HTTPStatus)
}

func TestWrapPlainErrorBecomesInternalError(t *testing.T) {
	wrapped := Wrap(errors.New("some low level failure"), "context")
	assert.Equal(t, ErrCodeInternalError, wrapped.Code)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "anything"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("agent", "x")))
	assert.False(t, IsNotFound(BadRequest("bad")))
	assert.False(t, IsNotFound(errors.New("plain error")))
}

func TestIsBadRequestCoversValidationToo(t *testing.T) {
	assert.True(t, IsBadRequest(BadRequest("bad")))
	assert.True(t, IsBadRequest(ValidationError("field", "invalid")))
}

func TestGetHTTPStatusDefaultsTo500ForPlainError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("boom")))
}
