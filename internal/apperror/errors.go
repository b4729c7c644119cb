// Package apperror provides a structured application error type with
// codes, severity levels, and additional details, plus a mapping from
// error code to HTTP status for the ingest response path.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a specific application error code.
type ErrorCode string

const (
	// Config errors: startup-only, fatal, non-retryable.
	CodeConfigInvalid                  ErrorCode = "CONFIG_INVALID"
	CodeConfigDuplicateProducerName    ErrorCode = "CONFIG_DUPLICATE_PRODUCER_NAME"
	CodeConfigUnknownProducer          ErrorCode = "CONFIG_UNKNOWN_PRODUCER"
	CodeConfigDuplicateSchema          ErrorCode = "CONFIG_DUPLICATE_SCHEMA"
	CodeConfigDuplicateProcessorBinding ErrorCode = "CONFIG_DUPLICATE_PROCESSOR_BINDING"

	// Request errors: captured per-request, mapped to an HTTP status.
	CodeBroker         ErrorCode = "BROKER_ERROR"
	CodeIO             ErrorCode = "IO_ERROR"
	CodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	CodeBadRequest     ErrorCode = "BAD_REQUEST"
	CodeProcessor      ErrorCode = "PROCESSOR_ERROR"

	// General.
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	CodeRateLimited     ErrorCode = "RATE_LIMITED"
)

// Severity defines the criticality level of an error.
type Severity int

const (
	// SeverityWarning indicates a non-critical issue that can be ignored or automatically resolved.
	SeverityWarning Severity = iota
	// SeverityError indicates a standard error that requires attention.
	SeverityError
	// SeverityCritical indicates a severe error that might require immediate human intervention.
	SeverityCritical
)

// String returns the string representation of the Severity.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Error is the single application error type used throughout the service.
// Startup errors (Config*) carry no Cause chain beyond what produced them;
// request errors wrap the underlying failure (broker rejection, read
// failure, processor panic) in Cause.
type Error struct {
	Code     ErrorCode
	Message  string
	Field    string
	Details  map[string]any
	Cause    error
	Severity Severity
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error, allowing errors.Is/As to see through it.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error's code to the response status the HTTP
// front-end should send for it. Config* codes are startup-only and never
// reach a request; they map to 500 here only as a defensive fallback.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeBroker, CodeIO, CodeProcessor, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new application error with the given code and message.
// The default severity is SeverityError.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Details:  make(map[string]any),
		Severity: SeverityError,
	}
}

// NewWithField creates a new application error with the given code, message, and field.
func NewWithField(code ErrorCode, message, field string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Field:    field,
		Details:  make(map[string]any),
		Severity: SeverityError,
	}
}

// NewWarning creates a new application error with SeverityWarning.
func NewWarning(code ErrorCode, message string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Details:  make(map[string]any),
		Severity: SeverityWarning,
	}
}

// NewCritical creates a new application error with SeverityCritical.
func NewCritical(code ErrorCode, message string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Details:  make(map[string]any),
		Severity: SeverityCritical,
	}
}

// Wrap creates a new application error that wraps cause, carrying
// additional code/message context. The default severity is SeverityError.
func Wrap(cause error, code ErrorCode, message string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Cause:    cause,
		Details:  make(map[string]any),
		Severity: SeverityError,
	}
}

// WithDetails adds a key-value pair to the error's details map.
func (e *Error) WithDetails(key string, value any) *Error {
	e.Details[key] = value
	return e
}

// WithField sets the field associated with the error.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithSeverity sets the severity level of the error.
func (e *Error) WithSeverity(s Severity) *Error {
	e.Severity = s
	return e
}

// Is checks if err is an *Error with a matching ErrorCode.
func Is(err error, code ErrorCode) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Code extracts the ErrorCode from err. Returns CodeInternal if err is not
// an *Error.
func Code(err error) ErrorCode {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps any error to the HTTP status the front-end should
// respond with. Non-*Error values map to 500.
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// IsWarning checks if err is an *Error with SeverityWarning.
func IsWarning(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Severity == SeverityWarning
	}
	return false
}

// IsCritical checks if err is an *Error with SeverityCritical.
func IsCritical(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Severity == SeverityCritical
	}
	return false
}

// Predefined errors for the startup config-validation paths named by the
// spec's ConfigError taxonomy.
var (
	ErrConfigInvalid                   = New(CodeConfigInvalid, "invalid configuration")
	ErrConfigDuplicateProducerName     = New(CodeConfigDuplicateProducerName, "duplicate producer name")
	ErrConfigUnknownProducer           = New(CodeConfigUnknownProducer, "producer_name does not exist in the pool")
	ErrConfigDuplicateSchema           = New(CodeConfigDuplicateSchema, "duplicate schema_id")
	ErrConfigDuplicateProcessorBinding = New(CodeConfigDuplicateProcessorBinding, "duplicate processor binding for schema and method")
)

// ValidationErrors aggregates errors and warnings collected while
// validating a batch of config entries (schemas, producers, processor
// bindings) so the caller can report every offense at once instead of
// failing on the first.
type ValidationErrors struct {
	Errors   []*Error
	Warnings []*Error
}

// NewValidationErrors creates an empty ValidationErrors collection.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors:   make([]*Error, 0),
		Warnings: make([]*Error, 0),
	}
}

// Add appends err to Errors or Warnings based on its Severity.
func (v *ValidationErrors) Add(err *Error) {
	if err.Severity == SeverityWarning {
		v.Warnings = append(v.Warnings, err)
	} else {
		v.Errors = append(v.Errors, err)
	}
}

// AddError creates and appends a new SeverityError entry.
func (v *ValidationErrors) AddError(code ErrorCode, message string) {
	v.Errors = append(v.Errors, New(code, message))
}

// AddWarning creates and appends a new SeverityWarning entry.
func (v *ValidationErrors) AddWarning(code ErrorCode, message string) {
	v.Warnings = append(v.Warnings, NewWarning(code, message))
}

// AddErrorWithField creates and appends a new SeverityError entry tied to a field.
func (v *ValidationErrors) AddErrorWithField(code ErrorCode, message, field string) {
	v.Errors = append(v.Errors, NewWithField(code, message, field))
}

// HasErrors reports whether any non-warning entries were collected.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// HasWarnings reports whether any warning entries were collected.
func (v *ValidationErrors) HasWarnings() bool {
	return len(v.Warnings) > 0
}

// IsValid reports whether the collection contains no errors.
func (v *ValidationErrors) IsValid() bool {
	return !v.HasErrors()
}

// Merge appends other's entries onto v.
func (v *ValidationErrors) Merge(other *ValidationErrors) {
	if other == nil {
		return
	}
	v.Errors = append(v.Errors, other.Errors...)
	v.Warnings = append(v.Warnings, other.Warnings...)
}

// ErrorMessages returns the message of every collected error.
func (v *ValidationErrors) ErrorMessages() []string {
	messages := make([]string, len(v.Errors))
	for i, err := range v.Errors {
		messages[i] = err.Error()
	}
	return messages
}

// WarningMessages returns the message of every collected warning.
func (v *ValidationErrors) WarningMessages() []string {
	messages := make([]string, len(v.Warnings))
	for i, warn := range v.Warnings {
		messages[i] = warn.Message
	}
	return messages
}
