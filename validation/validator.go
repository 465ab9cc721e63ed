package validation

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/kbukum/playurl/errors"
)

// resourceIDPattern accepts track ids as they appear in URL paths and
// storage keys.
var resourceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// Validator collects field errors.
type Validator struct {
	errors []FieldError
}

// FieldError is one failing field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates an empty Validator.
func New() *Validator {
	return &Validator{}
}

// AddError records a failing field.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any check failed.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns the collected field errors.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Err returns an INVALID_INPUT AppError naming every failing field, or nil.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	messages := make([]string, len(v.errors))
	for i, e := range v.errors {
		messages[i] = fmt.Sprintf("%s %s", e.Field, e.Message)
	}
	field := ""
	if len(v.errors) == 1 {
		field = v.errors[0].Field
	}
	return apperrors.InvalidInput(field, strings.Join(messages, "; ")).WithDetail("fields", v.errors)
}

// Required fails on empty or whitespace-only values.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
	return v
}

// ResourceID fails unless value is a well-formed track id.
func (v *Validator) ResourceID(field, value string) *Validator {
	if value == "" {
		v.AddError(field, "is required")
		return v
	}
	if !resourceIDPattern.MatchString(value) {
		v.AddError(field, "must be 1-128 characters of letters, digits, '.', '_' or '-'")
	}
	return v
}

// MaxLength fails when value is longer than maxLen bytes.
func (v *Validator) MaxLength(field, value string, maxLen int) *Validator {
	if len(value) > maxLen {
		v.AddError(field, fmt.Sprintf("must be %d characters or less", maxLen))
	}
	return v
}

// OneOf fails when a non-empty value is not in allowed.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" {
		return v
	}
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
	return v
}

// Custom records message for field when condition is false.
func (v *Validator) Custom(condition bool, field, message string) *Validator {
	if !condition {
		v.AddError(field, message)
	}
	return v
}
