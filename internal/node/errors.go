package node

import (
	"errors"
	"fmt"
)

// Error kinds reported by operations. Match with errors.Is.
var (
	// ErrValidation is a missing or structurally invalid parameter.
	ErrValidation = errors.New("validation failed")
	// ErrResponseFormat is a success response whose body matches no expected shape.
	ErrResponseFormat = errors.New("unexpected response format")
	// ErrUnsupportedOperation is an operation the selected backend cannot perform.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// OperationError carries a human-readable message for the host together
// with the kind of failure.
type OperationError struct {
	kind error
	msg  string
}

// Error returns the message surfaced to the workflow user.
func (e *OperationError) Error() string {
	return e.msg
}

// Unwrap exposes the error kind.
func (e *OperationError) Unwrap() error {
	return e.kind
}

// Validationf returns an ErrValidation error.
func Validationf(format string, args ...any) error {
	return &OperationError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// ResponseFormatf returns an ErrResponseFormat error.
func ResponseFormatf(format string, args ...any) error {
	return &OperationError{kind: ErrResponseFormat, msg: fmt.Sprintf(format, args...)}
}

// Unsupportedf returns an ErrUnsupportedOperation error.
func Unsupportedf(format string, args ...any) error {
	return &OperationError{kind: ErrUnsupportedOperation, msg: fmt.Sprintf(format, args...)}
}
