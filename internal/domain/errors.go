package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeAlreadyExists  = "ALREADY_EXISTS"
	ErrCodeNotConfigured  = "NOT_CONFIGURED"
	ErrCodeUpstreamFailed = "UPSTREAM_FAILED"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrMissingRequiredField  = NewDomainError(ErrCodeValidation, "missing required field")
	ErrUnsupportedFileType   = NewDomainError(ErrCodeValidation, "unsupported file type")
	ErrEmptyDocumentText     = NewDomainError(ErrCodeValidation, "could not extract text from file")
	ErrInvalidConversation   = NewDomainError(ErrCodeValidation, "invalid conversation turn role")
	ErrInvalidStudyPathJSON  = NewDomainError(ErrCodeValidation, "study path must be valid JSON")
)

// Not found errors
var (
	ErrCourseNotFound = NewDomainError(ErrCodeNotFound, "course not found")
	ErrModuleNotFound = NewDomainError(ErrCodeNotFound, "module not found")
)

// Configuration errors. Surfaced as 503 by the HTTP layer so a missing API key
// is visible at the edge instead of failing deep inside a request.
var (
	ErrLLMNotConfigured       = NewDomainError(ErrCodeNotConfigured, "language model service not configured: STUDYBUDDY_ANTHROPIC_API_KEY required")
	ErrRetrievalNotConfigured = NewDomainError(ErrCodeNotConfigured, "retrieval service not configured: STUDYBUDDY_SUPERMEMORY_API_KEY required")
	ErrCanvasNotConfigured    = NewDomainError(ErrCodeNotConfigured, "canvas service not configured: STUDYBUDDY_CANVAS_TOKEN required")
)

// Upstream errors
var (
	ErrRetrievalBadResponse = NewDomainError(ErrCodeUpstreamFailed, "unrecognized retrieval response shape")
)
