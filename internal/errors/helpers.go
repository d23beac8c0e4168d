package errors

import (
	"fmt"
	"net/http"
	"time"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewMissingSessionIDError reports a request that names no session
func NewMissingSessionIDError() *AppError {
	return New(ErrCodeMissingSessionID, "session id is required").
		WithUserMessage("sessionId is required")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewUnknownSessionError reports an operation on a session id that is not registered
func NewUnknownSessionError(sessionID string) *AppError {
	return New(ErrCodeUnknownSession, "session not found").
		WithContext("session_id", sessionID).
		WithUserMessage(fmt.Sprintf("Session %s not found", sessionID))
}

// NewDuplicateSessionError reports an id collision on create
func NewDuplicateSessionError(sessionID string) *AppError {
	return New(ErrCodeDuplicateSession, "session already exists").
		WithContext("session_id", sessionID).
		WithUserMessage(fmt.Sprintf("Session %s already exists", sessionID))
}

// NewInvalidStateError reports an operation that the session's current state does not allow
func NewInvalidStateError(sessionID, state, operation string) *AppError {
	return New(ErrCodeInvalidState, fmt.Sprintf("cannot %s while session is %s", operation, state)).
		WithContext("session_id", sessionID).
		WithContext("state", state).
		WithContext("operation", operation).
		WithUserMessage(fmt.Sprintf("Session is %s", state))
}

// NewAdapterError wraps a failed or timed out adapter call. Adapter failures
// drive the retry policy, so they are always retryable.
func NewAdapterError(provider, operation string, err error) *AppError {
	return WrapRetryable(err, ErrCodeAdapterFailure, fmt.Sprintf("%s adapter %s failed", provider, operation)).
		WithContext("provider", provider).
		WithContext("operation", operation).
		WithUserMessage("Messaging provider call failed")
}

// NewRetryBudgetError reports that a session exhausted its reconnect attempts
func NewRetryBudgetError(sessionID string, attempts int, err error) *AppError {
	return Wrap(err, ErrCodeRetryBudgetExhausted, fmt.Sprintf("reconnect failed after %d attempts", attempts)).
		WithContext("session_id", sessionID).
		WithContext("attempts", attempts).
		WithUserMessage("Session could not be reconnected")
}

// NewTimeoutError reports an operation abandoned at its deadline. err is
// usually the context error.
func NewTimeoutError(operation string, limit time.Duration, err error) *AppError {
	return Wrap(err, ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, limit)).
		WithContext("operation", operation).
		WithContext("timeout", limit.String()).
		WithUserMessage("Operation timed out, please try again")
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit int, window string) *AppError {
	return New(ErrCodeRateLimit, "rate limit exceeded").
		WithContext("limit", limit).
		WithContext("window", window).
		WithUserMessage("Too many requests, please try again later")
}

// HTTP helpers

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig, ErrCodeMissingSessionID:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeUnknownSession:
		return http.StatusNotFound
	case ErrCodeDuplicateSession, ErrCodeInvalidState:
		return http.StatusConflict
	case ErrCodeChallengeUnavailable:
		return http.StatusAccepted
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeAdapterFailure:
		return http.StatusBadGateway
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the error body returned by the HTTP layer
type HTTPErrorResponse struct {
	OK        bool      `json:"ok"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	return HTTPErrorResponse{
		OK:        false,
		Code:      GetCode(err),
		Message:   GetUserMessage(err),
		RequestID: requestID,
	}
}
