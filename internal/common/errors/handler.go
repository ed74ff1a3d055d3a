package errors

// ErrorHandler absorbs failures at a component boundary: it normalizes, logs and
// reports them without propagating further.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err for operation and returns the normalized StandardError.
// Nil errors return nil.
func (h *ErrorHandler) Handle(operation string, err error) *StandardError {
	if err == nil {
		return nil
	}
	stdErr := As(err)

	fields := map[string]interface{}{
		"operation": operation,
		"errorCode": stdErr.Code,
		"category":  GetErrorCategory(stdErr.Code),
		"retryable": stdErr.Retryable,
		"message":   stdErr.Message,
	}
	if stdErr.Details != "" {
		fields["details"] = stdErr.Details
	}
	for k, v := range stdErr.Metadata {
		if _, taken := fields[k]; !taken {
			fields[k] = v
		}
	}

	if h.logger == nil {
		return stdErr
	}
	switch GetErrorCategory(stdErr.Code) {
	case "validation", "session":
		h.logger.Warn("operation refused", fields)
	default:
		h.logger.Error("operation failed", fields)
	}
	return stdErr
}
