// Package errors provides standardized error handling for the campaign client.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrCodeSessionActive      ErrorCode = "SESSION_ACTIVE"
	ErrCodeSessionClosed      ErrorCode = "SESSION_CLOSED"
	ErrCodeTransportFailed    ErrorCode = "TRANSPORT_FAILED"
	ErrCodeTransportTimeout   ErrorCode = "TRANSPORT_TIMEOUT"
	ErrCodeResponseInvalid    ErrorCode = "RESPONSE_INVALID"
	ErrCodeStreamErrorFrame   ErrorCode = "STREAM_ERROR_FRAME"
	ErrCodeConnectionDrop     ErrorCode = "CONNECTION_DROP"
	ErrCodeReconnectExhausted ErrorCode = "RECONNECT_EXHAUSTED"
	ErrCodeResultMismatch     ErrorCode = "RESULT_MISMATCH"
	ErrCodeTargetUnknown      ErrorCode = "TARGET_UNKNOWN"
	ErrCodeMailSendFailed     ErrorCode = "MAIL_SEND_FAILED"
	ErrCodeArchiveFailed      ErrorCode = "ARCHIVE_FAILED"
	ErrCodeInProgress         ErrorCode = "OPERATION_IN_PROGRESS"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is matches on error code so callers can compare against the sentinel values below.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// WithMetadata returns the error with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Code-only sentinels for errors.Is comparisons.
var (
	ErrValidationFailed   = &StandardError{Code: ErrCodeValidationFailed}
	ErrSessionActive      = &StandardError{Code: ErrCodeSessionActive}
	ErrSessionClosed      = &StandardError{Code: ErrCodeSessionClosed}
	ErrTransportFailed    = &StandardError{Code: ErrCodeTransportFailed}
	ErrResponseInvalid    = &StandardError{Code: ErrCodeResponseInvalid}
	ErrReconnectExhausted = &StandardError{Code: ErrCodeReconnectExhausted}
	ErrTargetUnknown      = &StandardError{Code: ErrCodeTargetUnknown}
	ErrMailSendFailed     = &StandardError{Code: ErrCodeMailSendFailed}
	ErrInProgress         = &StandardError{Code: ErrCodeInProgress}
)

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError creates a non-retryable stage input error.
func NewValidationError(field, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Required input missing",
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"field": field},
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionActiveError is returned when a generation session is already live.
func NewSessionActiveError(state string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionActive,
		Message:   "Generation session already active",
		Details:   fmt.Sprintf("state: %s", state),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionClosedError is returned when an operation targets a closed session.
func NewSessionClosedError() *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionClosed,
		Message:   "Generation session closed",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransportError wraps a failed REST call.
func NewTransportError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransportFailed,
		Message:   "Request failed",
		Details:   fmt.Sprintf("operation: %s, error: %v", operation, err),
		Retryable: true,
		Metadata:  map[string]interface{}{"operation": operation},
		Timestamp: time.Now().UTC(),
	}
}

// NewHTTPStatusError reports a non-2xx response.
func NewHTTPStatusError(operation string, status int, body string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransportFailed,
		Message:   "Unexpected response status",
		Details:   fmt.Sprintf("operation: %s, status: %d, body: %s", operation, status, truncate(body, 256)),
		Retryable: status >= 500,
		Metadata:  map[string]interface{}{"operation": operation, "status": status},
		Timestamp: time.Now().UTC(),
	}
}

// NewTransportTimeoutError reports an exceeded request deadline.
func NewTransportTimeoutError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransportTimeout,
		Message:   "Request timed out",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Metadata:  map[string]interface{}{"operation": operation},
		Timestamp: time.Now().UTC(),
	}
}

// NewResponseInvalidError reports a payload that failed decoding or schema validation.
func NewResponseInvalidError(source string, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResponseInvalid,
		Message:   "Invalid payload",
		Details:   fmt.Sprintf("source: %s, %s", source, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStreamErrorFrameError carries the payload of a server {error} frame.
func NewStreamErrorFrameError(payload string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStreamErrorFrame,
		Message:   "Server reported a generation error",
		Details:   truncate(payload, 512),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConnectionDropError reports a channel closure without a terminal frame.
func NewConnectionDropError(err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeConnectionDrop,
		Message:   "Channel closed before the result frame",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewReconnectExhaustedError is returned once the reconnect budget is spent.
func NewReconnectExhaustedError(attempts int) *StandardError {
	return &StandardError{
		Code:      ErrCodeReconnectExhausted,
		Message:   "Reconnect attempts exhausted",
		Details:   fmt.Sprintf("attempts: %d", attempts),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewResultMismatchError reports result keys that differ from the requested segments.
func NewResultMismatchError(missing, unexpected []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResultMismatch,
		Message:   "Result segments differ from requested segments",
		Details:   fmt.Sprintf("missing: [%s], unexpected: [%s]", strings.Join(missing, ", "), strings.Join(unexpected, ", ")),
		Retryable: false,
		Metadata:  map[string]interface{}{"missing": missing, "unexpected": unexpected},
		Timestamp: time.Now().UTC(),
	}
}

// NewTargetUnknownError reports an operation on a segment with no results.
func NewTargetUnknownError(target string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTargetUnknown,
		Message:   "Unknown audience segment",
		Details:   fmt.Sprintf("target: %s", target),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMailSendFailedError wraps a failed mail dispatch.
func NewMailSendFailedError(transport string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMailSendFailed,
		Message:   "Failed to send email",
		Details:   fmt.Sprintf("transport: %s, error: %v", transport, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewArchiveFailedError wraps a failed archive write.
func NewArchiveFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeArchiveFailed,
		Message:   "Failed to archive campaign",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInProgressError is returned when a stage operation is still running.
func NewInProgressError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInProgress,
		Message:   "Another operation is in progress",
		Details:   operation,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// As extracts a StandardError from err, normalizing foreign errors to INTERNAL_ERROR.
func As(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// CodeOf returns the error code of err, or an empty code for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return As(err).Code
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeTransportFailed, ErrCodeTransportTimeout, ErrCodeConnectionDrop,
		ErrCodeMailSendFailed, ErrCodeArchiveFailed:
		return true
	}
	return false
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeValidationFailed, ErrCodeTargetUnknown:
		return "validation"
	case ErrCodeSessionActive, ErrCodeSessionClosed, ErrCodeInProgress:
		return "session"
	case ErrCodeTransportFailed, ErrCodeTransportTimeout, ErrCodeResponseInvalid:
		return "transport"
	case ErrCodeStreamErrorFrame, ErrCodeConnectionDrop, ErrCodeReconnectExhausted, ErrCodeResultMismatch:
		return "stream"
	case ErrCodeMailSendFailed:
		return "mail"
	case ErrCodeArchiveFailed:
		return "archive"
	}
	return "internal"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
