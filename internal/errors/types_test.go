package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeInvalidConfig,
				Message: "configuration is invalid",
			},
			expected: "INVALID_CONFIG: configuration is invalid",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeAdapterFailure,
				Message: "whatsapp adapter start failed",
				Cause:   errors.New("connection refused"),
			},
			expected: "ADAPTER_FAILURE: whatsapp adapter start failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternalError, "something went wrong")

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := NewUnknownSessionError("s1")
	wrapped := fmt.Errorf("get status: %w", err)

	assert.True(t, errors.Is(err, ErrUnknownSession))
	assert.True(t, errors.Is(wrapped, ErrUnknownSession))
	assert.False(t, errors.Is(wrapped, ErrDuplicateSession))
	assert.False(t, errors.Is(errors.New("plain"), ErrUnknownSession))
}

func TestNewTimeoutError_KeepsCause(t *testing.T) {
	err := NewTimeoutError("start", 50*time.Millisecond, context.DeadlineExceeded)

	assert.Equal(t, ErrCodeTimeout, err.Code)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "50ms", err.Context["timeout"])
	assert.Contains(t, err.Error(), "start timed out after 50ms")
}

func TestAppError_WithContext(t *testing.T) {
	err := New(ErrCodeValidationFailed, "validation failed")

	result := err.WithContext("field", "sessionId").WithContext("value", "")

	assert.Same(t, err, result)
	assert.Len(t, err.Context, 2)
	assert.Equal(t, "sessionId", err.Context["field"])
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewAdapterError("whatsapp", "probe", errors.New("timeout"))))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", WrapRetryable(errors.New("x"), ErrCodeTimeout, "t"))))
	assert.False(t, IsRetryable(NewDuplicateSessionError("s1")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestGetCodeAndUserMessage(t *testing.T) {
	err := NewInvalidStateError("s1", "CONNECTED", "request challenge")

	assert.Equal(t, ErrCodeInvalidState, GetCode(err))
	assert.Equal(t, "Session is CONNECTED", GetUserMessage(err))
	assert.Equal(t, ErrCodeInternalError, GetCode(errors.New("plain")))
	assert.Equal(t, "An internal error occurred", GetUserMessage(errors.New("plain")))
	assert.Equal(t, "bare", GetUserMessage(New(ErrCodeInternalError, "bare")))
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"unknown session", NewUnknownSessionError("x"), http.StatusNotFound},
		{"duplicate session", NewDuplicateSessionError("x"), http.StatusConflict},
		{"invalid state", NewInvalidStateError("x", "FAILED", "reconnect"), http.StatusConflict},
		{"validation", NewValidationError("provider", "fax", "unsupported"), http.StatusBadRequest},
		{"missing session id", NewMissingSessionIDError(), http.StatusBadRequest},
		{"adapter", NewAdapterError("telegram", "start", errors.New("x")), http.StatusBadGateway},
		{"auth", NewAuthError("bad token"), http.StatusUnauthorized},
		{"rate limit", NewRateLimitError(60, "1m"), http.StatusTooManyRequests},
		{"database", NewDatabaseError("insert", errors.New("locked")), http.StatusServiceUnavailable},
		{"timeout", NewTimeoutError("probe", time.Second, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatusCode(tt.err))
		})
	}
}

func TestToHTTPResponse(t *testing.T) {
	resp := ToHTTPResponse(NewUnknownSessionError("s9"), "req-1")

	assert.False(t, resp.OK)
	assert.Equal(t, ErrCodeUnknownSession, resp.Code)
	assert.Equal(t, "Session s9 not found", resp.Message)
	assert.Equal(t, "req-1", resp.RequestID)
}
