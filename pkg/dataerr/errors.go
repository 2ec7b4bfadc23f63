// Package dataerr defines the typed errors returned by the storage and database clients.
package dataerr

import (
	"errors"
	"fmt"
)

// Kind classifies why a client operation failed.
type Kind int

const (
	// KindInvalidArgument marks malformed connection parameters.
	KindInvalidArgument Kind = iota + 1
	// KindInvalidShape marks input of a shape the operation does not accept.
	KindInvalidShape
	// KindValidation marks well-shaped input that fails a precondition.
	KindValidation
	// KindDriver marks failures reported by the underlying driver or service.
	KindDriver
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidShape:
		return "invalid_shape"
	case KindValidation:
		return "validation"
	case KindDriver:
		return "driver"
	default:
		return "unknown"
	}
}

// Sentinels usable with errors.Is; an *Error matches the sentinel of its kind.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidShape    = errors.New("invalid input shape")
	ErrValidation      = errors.New("validation failed")
	ErrDriver          = errors.New("driver failure")
)

// Error is a failed client operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

func sentinel(k Kind) error {
	switch k {
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindInvalidShape:
		return ErrInvalidShape
	case KindValidation:
		return ErrValidation
	case KindDriver:
		return ErrDriver
	}
	return nil
}

// New wraps err as a failure of op with the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// InvalidArgument creates a KindInvalidArgument error with a formatted message.
func InvalidArgument(op, format string, args ...any) *Error {
	return New(KindInvalidArgument, op, fmt.Errorf(format, args...))
}

// InvalidShape creates a KindInvalidShape error with a formatted message.
func InvalidShape(op, format string, args ...any) *Error {
	return New(KindInvalidShape, op, fmt.Errorf(format, args...))
}

// Validation creates a KindValidation error with a formatted message.
func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, fmt.Errorf(format, args...))
}

// Driver wraps a driver error.
func Driver(op string, err error) *Error {
	return New(KindDriver, op, err)
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
