package workflow

import "fmt"

// Error codes shared with the HTTP layer
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeInvalidStatus = "INVALID_STATUS"
	CodeUnknownStep   = "UNKNOWN_STEP"
	CodeInvalidSLA    = "INVALID_SLA"
	CodeMissingRate   = "MISSING_EXCHANGE_RATE"
	CodeConflict      = "CONFLICT"
	CodeInFlight      = "TRANSITION_IN_FLIGHT"
	CodeUnavailable   = "STORE_UNAVAILABLE"
	CodeNotFound      = "NOT_FOUND"
	CodeForbidden     = "FORBIDDEN"
)

// ValidationError represents malformed input rejected before any write
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError with a formatted message
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: CodeValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConfigurationError represents a referential inconsistency in tenant
// configuration, such as an order status without a workflow step.
type ConfigurationError struct {
	Code    string
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// ConcurrencyError represents a write rejected because the record changed
// underneath the caller or the actor lost permission at write time.
type ConcurrencyError struct {
	Code    string
	Message string
	Err     error
}

func (e *ConcurrencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ConcurrencyError) Unwrap() error {
	return e.Err
}

// TransientIOError represents store unavailability; callers may retry
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a missing record, or one outside the caller's tenant
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ForbiddenError reports an actor without the privilege for an operation
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}
