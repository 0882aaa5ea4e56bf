package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeMissingInput is fatal: a required artifact or column is absent
	ErrTypeMissingInput ErrorType = "MISSING_INPUT"
	// ErrTypeInsufficientData skips one entity; the batch continues
	ErrTypeInsufficientData ErrorType = "INSUFFICIENT_DATA"
	// ErrTypeUnmapped defaults an entity to Other and is reported as a warning
	ErrTypeUnmapped ErrorType = "UNMAPPED"
	// ErrTypeConvergence triggers the std-dev fallback for one fit
	ErrTypeConvergence ErrorType = "CONVERGENCE"

	ErrTypeNetwork    ErrorType = "NETWORK"
	ErrTypeParsing    ErrorType = "PARSING"
	ErrTypeStorage    ErrorType = "STORAGE"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeConfig     ErrorType = "CONFIG"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	// Hint names the stage that produces the missing artifact, if any
	Hint    string
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Hint != "" {
		msg = fmt.Sprintf("%s (run the %s stage first)", msg, e.Hint)
	}
	return msg
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsFatal reports whether the error should abort the current stage
func (e *AppError) IsFatal() bool {
	switch e.Type {
	case ErrTypeInsufficientData, ErrTypeUnmapped, ErrTypeConvergence:
		return false
	}
	return true
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewMissingInputError reports an absent file or column and the stage that produces it
func NewMissingInputError(artifact, producedBy string, cause error) *AppError {
	e := NewAppError(ErrTypeMissingInput, fmt.Sprintf("missing input %s", artifact), cause)
	e.Hint = producedBy
	return e.WithContext("artifact", artifact)
}

// NewInsufficientDataError reports that an entity has too few observations
func NewInsufficientDataError(entity, message string) *AppError {
	return NewAppError(ErrTypeInsufficientData, fmt.Sprintf("%s: %s", entity, message), nil).
		WithContext("entity", entity)
}

// NewUnmappedError reports a ticker with no known sector
func NewUnmappedError(ticker string) *AppError {
	return NewAppError(ErrTypeUnmapped, fmt.Sprintf("no sector for %s", ticker), nil).
		WithContext("ticker", ticker)
}

// NewConvergenceError reports an optimizer failure for one fit
func NewConvergenceError(entity string, cause error) *AppError {
	return NewAppError(ErrTypeConvergence, fmt.Sprintf("model did not converge for %s", entity), cause).
		WithContext("entity", entity)
}

// NewNetworkError creates a network-related error
func NewNetworkError(message string, cause error) *AppError {
	return NewAppError(ErrTypeNetwork, message, cause)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// IsType reports whether err wraps an AppError of the given type
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// AsAppError extracts the first AppError in err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}
