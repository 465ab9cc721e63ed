package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is an error with a client-facing code and message. Cause stays
// server side: it is logged and unwrapped but never serialized.
type AppError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Retryable  bool           `json:"retryable"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithCause records the underlying error and returns e.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail adds one client-visible detail and returns e.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// New builds an AppError whose status and retry hint follow code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: StatusFor(code),
		Retryable:  IsRetryableCode(code),
	}
}

// HasCode reports whether err wraps an AppError with code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}

// ServiceUnavailable is a dependency that is down for now.
func ServiceUnavailable(service string) *AppError {
	return New(ErrCodeServiceUnavailable, fmt.Sprintf("The %s is temporarily unavailable. Please try again.", service)).
		WithDetail("service", service)
}

// GeneratorUnavailable is returned while the URL generator's breaker is
// open, so clients can tell "try again shortly" apart from "not allowed".
func GeneratorUnavailable() *AppError {
	return New(ErrCodeGeneratorUnavailable, "Playback is temporarily unavailable. Please try again shortly.")
}

// Timeout is an operation that ran out of time.
func Timeout(operation string) *AppError {
	return New(ErrCodeTimeout, "The request took too long. Please try again.").WithDetail("operation", operation)
}

// RateLimited is a caller over its request budget.
func RateLimited() *AppError {
	return New(ErrCodeRateLimited, "Too many requests. Please slow down.")
}

// NotFound is a missing resource; id is omitted from details when empty.
func NotFound(resource, id string) *AppError {
	err := New(ErrCodeNotFound, fmt.Sprintf("The requested %s was not found.", resource)).WithDetail("resource", resource)
	if id != "" {
		err.WithDetail("id", id)
	}
	return err
}

// InvalidInput is a rejected request parameter.
func InvalidInput(field, reason string) *AppError {
	err := New(ErrCodeInvalidInput, "Invalid input: "+reason)
	if field != "" {
		err.WithDetail("field", field)
	}
	return err
}

// MissingField is a required parameter that was not supplied.
func MissingField(field string) *AppError {
	return New(ErrCodeMissingField, "Missing required field: "+field).WithDetail("field", field)
}

// Unauthorized is a request without a usable caller identity.
func Unauthorized(reason string) *AppError {
	return New(ErrCodeUnauthorized, orDefault(reason, "Authentication required."))
}

// Forbidden is a caller without rights on an existing resource.
func Forbidden(reason string) *AppError {
	return New(ErrCodeForbidden, orDefault(reason, "You don't have permission to perform this action."))
}

// Internal hides cause behind a generic message.
func Internal(cause error) *AppError {
	return New(ErrCodeInternal, "An unexpected error occurred. Please try again or contact support.").WithCause(cause)
}

// ExternalServiceError is a failing collaborator such as storage or the broker.
func ExternalServiceError(service string, cause error) *AppError {
	return New(ErrCodeExternalService, fmt.Sprintf("The %s service encountered an error. Please try again.", service)).
		WithDetail("service", service).WithCause(cause)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
