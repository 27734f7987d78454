package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeClassification = "CLASSIFICATION_ERROR"
	ErrCodeSupervision    = "SUPERVISION_ERROR"
	ErrCodePolicy         = "POLICY_ERROR"
	ErrCodeExecution      = "EXECUTION_ERROR"
	ErrCodeTimeout        = "TIMEOUT_ERROR"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeRetryExhausted = "RETRY_EXHAUSTED"
	ErrCodeCancelled      = "CANCELLED"
	ErrCodeStore          = "STORE_ERROR"
)

// StewardError is the structured error type for all steward operations.
type StewardError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Node    string         `json:"node,omitempty"`
	Cause   error          `json:"-"`
}

func (e *StewardError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.Node, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *StewardError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error code represents a transient condition
// the error-handler node is allowed to retry.
func (e *StewardError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeTimeout, ErrCodeRateLimited, ErrCodeStore:
		return true
	default:
		return false
	}
}

// NewError creates a new StewardError.
func NewError(code, message string) *StewardError {
	return &StewardError{Code: code, Message: message}
}

// NewErrorf creates a new StewardError with a formatted message.
func NewErrorf(code, format string, args ...any) *StewardError {
	return &StewardError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches the graph node where the error surfaced.
func (e *StewardError) WithNode(node string) *StewardError {
	e.Node = node
	return e
}

// WithCause attaches an underlying cause.
func (e *StewardError) WithCause(err error) *StewardError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *StewardError) WithDetails(details map[string]any) *StewardError {
	e.Details = details
	return e
}
