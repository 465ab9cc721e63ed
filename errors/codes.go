package errors

import "net/http"

// ErrorCode is the machine-readable code sent to clients.
type ErrorCode string

// Codes the service can return. Their status and retry hint live in codeInfo.
const (
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeGeneratorUnavailable means the URL generator's breaker is open.
	ErrCodeGeneratorUnavailable ErrorCode = "GENERATOR_UNAVAILABLE"
	ErrCodeTimeout              ErrorCode = "TIMEOUT"
	ErrCodeRateLimited          ErrorCode = "RATE_LIMITED"

	// ErrCodeNotFound covers unknown, purged and hidden-forbidden resources.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// ErrCodeUnauthorized means no caller identity could be established.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeForbidden means the caller lacks the right on an existing resource.
	ErrCodeForbidden ErrorCode = "FORBIDDEN"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeExternalService wraps storage, record store and broker failures.
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

var codeInfo = map[ErrorCode]struct {
	status    int
	retryable bool
}{
	ErrCodeServiceUnavailable:   {http.StatusServiceUnavailable, true},
	ErrCodeGeneratorUnavailable: {http.StatusServiceUnavailable, true},
	ErrCodeTimeout:              {http.StatusGatewayTimeout, true},
	ErrCodeRateLimited:          {http.StatusTooManyRequests, true},
	ErrCodeNotFound:             {http.StatusNotFound, false},
	ErrCodeInvalidInput:         {http.StatusBadRequest, false},
	ErrCodeMissingField:         {http.StatusBadRequest, false},
	ErrCodeUnauthorized:         {http.StatusUnauthorized, false},
	ErrCodeForbidden:            {http.StatusForbidden, false},
	ErrCodeInternal:             {http.StatusInternalServerError, false},
	ErrCodeExternalService:      {http.StatusBadGateway, true},
}

// IsRetryableCode reports whether a client may retry a request that failed
// with code.
func IsRetryableCode(code ErrorCode) bool {
	return codeInfo[code].retryable
}

// StatusFor maps code to its HTTP status; unknown codes are 500.
func StatusFor(code ErrorCode) int {
	if info, ok := codeInfo[code]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}
