package domain

import "fmt"

const (
	CodeValidation           = "validation_error"
	CodeScheduleNotFound     = "schedule_not_found"
	CodeNotFound             = "not_found"
	CodeInvalidDefaultAction = "invalid_default_action"
	CodeStorage              = "storage_error"
)

// ValidationError reports bad or missing input. It never reaches storage.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// StorageError wraps a persistence failure. Op names the failed operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }
