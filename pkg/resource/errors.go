package resource

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the resource does not exist. During teardown it is the
	// absence signal; during provisioning it is a failure.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists means a create targeted a logical resource that is already
	// present. It is never treated as success.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrValidation means the spec is malformed. It is never retried.
	ErrValidation = errors.New("invalid resource spec")

	// ErrTransport means the backend could not be reached or rejected the
	// credentials. It is surfaced immediately and never retried by the engine.
	ErrTransport = errors.New("transport error")
)

// Error records a classified failure of one backend operation.
type Error struct {
	Op   string // "create", "get" or "delete"
	Kind Kind
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s.%s: %v", e.Op, e.Kind, e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err for the given operation on a resource.
func NewError(op string, kind Kind, name string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Name: name, Err: err}
}

// Validationf returns an ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err is classified as ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists reports whether err is classified as ErrAlreadyExists.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation reports whether err is classified as ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsTransport reports whether err is classified as ErrTransport.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
