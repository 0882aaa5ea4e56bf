package operations

import (
	"errors"
	"fmt"

	apperrors "shockstudy/internal/errors"
)

// ErrorType represents the type of operation error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeDependency   ErrorType = "dependency"
	ErrorTypeExecution    ErrorType = "execution"
	ErrorTypeCancellation ErrorType = "cancellation"
	ErrorTypeNotFound     ErrorType = "not_found"
)

// OperationError is a stage-level failure of a run
type OperationError struct {
	Type    ErrorType `json:"type"`
	Stage   string    `json:"stage,omitempty"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *OperationError) Error() string {
	if e == nil {
		return "unknown operation error"
	}
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.Stage != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Type, e.Stage, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewValidationError creates a validation error for a stage
func NewValidationError(stage, message string) *OperationError {
	return &OperationError{Type: ErrorTypeValidation, Stage: stage, Message: message}
}

// NewDependencyError reports a stage whose dependency is not registered
func NewDependencyError(stage, dependsOn string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeDependency,
		Stage:   stage,
		Message: fmt.Sprintf("depends on unknown stage %s", dependsOn),
	}
}

// NewExecutionError wraps a stage failure
func NewExecutionError(stage string, cause error) *OperationError {
	return &OperationError{Type: ErrorTypeExecution, Stage: stage, Message: "stage execution failed", Cause: cause}
}

// NewCancellationError reports a run cancelled before stage started
func NewCancellationError(stage string, cause error) *OperationError {
	return &OperationError{Type: ErrorTypeCancellation, Stage: stage, Message: "run cancelled", Cause: cause}
}

// NewNotFoundError reports an unknown stage ID
func NewNotFoundError(stage string) *OperationError {
	return &OperationError{Type: ErrorTypeNotFound, Stage: stage, Message: "stage not registered"}
}

// IsOperationError checks whether err is an OperationError of type t
func IsOperationError(err error, t ErrorType) bool {
	var opErr *OperationError
	return errors.As(err, &opErr) && opErr.Type == t
}

// FailedStage returns the stage an error was raised in, if known
func FailedStage(err error) string {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Stage
	}
	return ""
}

// MissingInput returns the missing-input cause of err, if any. Its Hint
// names the stage that produces the artifact.
func MissingInput(err error) (*apperrors.AppError, bool) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Type != apperrors.ErrTypeMissingInput {
		return nil, false
	}
	return appErr, true
}
