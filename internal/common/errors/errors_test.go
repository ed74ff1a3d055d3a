package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_Is(t *testing.T) {
	err := NewTargetUnknownError("Retirees")
	wrapped := fmt.Errorf("logo overlay: %w", err)

	assert.ErrorIs(t, wrapped, ErrTargetUnknown)
	assert.NotErrorIs(t, wrapped, ErrValidationFailed)

	// A target carrying a message is compared by identity only.
	assert.False(t, err.Is(&StandardError{Code: ErrCodeTargetUnknown, Message: "other"}))
	assert.False(t, err.Is(stderrors.New("TARGET_UNKNOWN")))
}

func TestStandardError_Error(t *testing.T) {
	assert.Equal(t, "StandardError[SESSION_CLOSED]: Generation session closed", NewSessionClosedError().Error())
	assert.Equal(t,
		"StandardError[RECONNECT_EXHAUSTED]: Reconnect attempts exhausted: attempts: 3",
		NewReconnectExhaustedError(3).Error())
}

func TestAs(t *testing.T) {
	assert.Nil(t, As(nil))

	orig := NewConnectionDropError(stderrors.New("EOF"))
	assert.Same(t, orig, As(fmt.Errorf("stream: %w", orig)))

	foreign := As(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, foreign.Code)
	assert.Equal(t, "boom", foreign.Details)
	assert.False(t, foreign.Retryable)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
	assert.Equal(t, ErrCodeStreamErrorFrame, CodeOf(NewStreamErrorFrameError("model overloaded")))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("boom")))
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *StandardError
		code      ErrorCode
		retryable bool
		category  string
	}{
		{"validation", NewValidationError("prompt", "prompt is empty"), ErrCodeValidationFailed, false, "validation"},
		{"session active", NewSessionActiveError("Streaming"), ErrCodeSessionActive, false, "session"},
		{"in progress", NewInProgressError("extract"), ErrCodeInProgress, false, "session"},
		{"transport", NewTransportError("file-process", stderrors.New("refused")), ErrCodeTransportFailed, true, "transport"},
		{"status 502", NewHTTPStatusError("send-mail", 502, "bad gateway"), ErrCodeTransportFailed, true, "transport"},
		{"status 400", NewHTTPStatusError("send-mail", 400, "bad request"), ErrCodeTransportFailed, false, "transport"},
		{"timeout", NewTransportTimeoutError("logo-process"), ErrCodeTransportTimeout, true, "transport"},
		{"invalid response", NewResponseInvalidError("generate-email", "missing mail_subject"), ErrCodeResponseInvalid, false, "transport"},
		{"connection drop", NewConnectionDropError(nil), ErrCodeConnectionDrop, true, "stream"},
		{"mismatch", NewResultMismatchError([]string{"A"}, nil), ErrCodeResultMismatch, false, "stream"},
		{"mail", NewMailSendFailedError("ses", stderrors.New("throttled")), ErrCodeMailSendFailed, true, "mail"},
		{"archive", NewArchiveFailedError(stderrors.New("tx aborted")), ErrCodeArchiveFailed, true, "archive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.Equal(t, tt.category, GetErrorCategory(tt.err.Code))
			assert.False(t, tt.err.Timestamp.IsZero())
		})
	}
	assert.Equal(t, "internal", GetErrorCategory(ErrCodeInternal))
}

func TestNewResultMismatchError_Details(t *testing.T) {
	err := NewResultMismatchError([]string{"Retirees", "Students"}, []string{"Stray"})
	assert.Equal(t, "missing: [Retirees, Students], unexpected: [Stray]", err.Details)
	assert.Equal(t, []string{"Stray"}, err.Metadata["unexpected"])
}

func TestIsRetryableErrorCode(t *testing.T) {
	assert.True(t, IsRetryableErrorCode(ErrCodeConnectionDrop))
	assert.True(t, IsRetryableErrorCode(ErrCodeTransportTimeout))
	assert.False(t, IsRetryableErrorCode(ErrCodeReconnectExhausted))
	assert.False(t, IsRetryableErrorCode(ErrCodeValidationFailed))
}

func TestNewStreamErrorFrameError_Truncates(t *testing.T) {
	payload := make([]byte, 600)
	for i := range payload {
		payload[i] = 'x'
	}
	err := NewStreamErrorFrameError(string(payload))
	assert.Len(t, err.Details, 512+len("..."))
}

// ==========================
// ErrorHandler
// ==========================

type logEntry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

type recordingLogger struct {
	entries []logEntry
}

func (l *recordingLogger) Warn(msg string, fields map[string]interface{}) {
	l.entries = append(l.entries, logEntry{"warn", msg, fields})
}

func (l *recordingLogger) Error(msg string, fields map[string]interface{}) {
	l.entries = append(l.entries, logEntry{"error", msg, fields})
}

func TestErrorHandler_Handle(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
		wantCode  ErrorCode
	}{
		{"validation warns", NewValidationError("targetAudiences", "select at least one segment"), "warn", ErrCodeValidationFailed},
		{"session warns", NewInProgressError("audience"), "warn", ErrCodeInProgress},
		{"transport errors", NewTransportTimeoutError("file-process"), "error", ErrCodeTransportTimeout},
		{"foreign errors", stderrors.New("boom"), "error", ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recordingLogger{}
			got := NewErrorHandler(log).Handle("advance", tt.err)

			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			require.Len(t, log.entries, 1)
			assert.Equal(t, tt.wantLevel, log.entries[0].level)
			assert.Equal(t, "advance", log.entries[0].fields["operation"])
			assert.Equal(t, tt.wantCode, log.entries[0].fields["errorCode"])
		})
	}
}

func TestErrorHandler_MetadataDoesNotOverrideFields(t *testing.T) {
	log := &recordingLogger{}
	err := NewTransportError("send-mail", stderrors.New("refused")).WithMetadata("category", "spoofed")

	NewErrorHandler(log).Handle("send email", err)

	require.Len(t, log.entries, 1)
	fields := log.entries[0].fields
	assert.Equal(t, "transport", fields["category"])
	assert.Equal(t, "send email", fields["operation"])
	assert.Contains(t, fields["details"], "refused")
}

func TestErrorHandler_NilSafe(t *testing.T) {
	assert.Nil(t, NewErrorHandler(&recordingLogger{}).Handle("advance", nil))

	got := NewErrorHandler(nil).Handle("advance", NewSessionClosedError())
	assert.Equal(t, ErrCodeSessionClosed, got.Code)
}
