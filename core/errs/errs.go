// Package errs defines the error kinds returned by the kernel's caller-facing
// operations.
//
// Each kind follows the same pattern:
//   - a sentinel (ErrObjectUnknown, ErrObjectExists, ...) usable with errors.Is
//   - a struct type carrying details, usable with errors.As
//   - a constructor
//
// Operations validate before mutating, so any error from this package means
// the domain was left untouched.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrObjectUnknown   = errors.New("object unknown")
	ErrObjectExists    = errors.New("object exists")
	ErrIllegalState    = errors.New("illegal state")
	ErrIllegalArgument = errors.New("illegal argument")
	ErrUnauthorized    = errors.New("unauthorized")
)

// ObjectUnknownError reports a reference to an entity that does not exist.
type ObjectUnknownError struct {
	Kind string
	Name string
}

func NewObjectUnknownError(kind, name string) *ObjectUnknownError {
	return &ObjectUnknownError{Kind: kind, Name: name}
}

func (e *ObjectUnknownError) Error() string {
	return fmt.Sprintf("%s: %s %q", ErrObjectUnknown, e.Kind, e.Name)
}

func (e *ObjectUnknownError) Unwrap() error { return ErrObjectUnknown }

// ObjectExistsError reports a name collision on creation.
type ObjectExistsError struct {
	Kind string
	Name string
}

func NewObjectExistsError(kind, name string) *ObjectExistsError {
	return &ObjectExistsError{Kind: kind, Name: name}
}

func (e *ObjectExistsError) Error() string {
	return fmt.Sprintf("%s: %s %q", ErrObjectExists, e.Kind, e.Name)
}

func (e *ObjectExistsError) Unwrap() error { return ErrObjectExists }

// IllegalStateError reports an operation that is not valid in the current
// kernel mode or entity state.
type IllegalStateError struct {
	Reason string
}

func NewIllegalStateError(format string, args ...any) *IllegalStateError {
	return &IllegalStateError{Reason: fmt.Sprintf(format, args...)}
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("%s: %s", ErrIllegalState, e.Reason)
}

func (e *IllegalStateError) Unwrap() error { return ErrIllegalState }

// IllegalArgumentError reports a malformed parameter.
type IllegalArgumentError struct {
	Param  string
	Reason string
}

func NewIllegalArgumentError(param, reason string) *IllegalArgumentError {
	return &IllegalArgumentError{Param: param, Reason: reason}
}

func (e *IllegalArgumentError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrIllegalArgument, e.Param, e.Reason)
}

func (e *IllegalArgumentError) Unwrap() error { return ErrIllegalArgument }

// UnauthorizedError is raised by transport layers; the kernel itself never
// returns it but callers must be able to tell it apart.
type UnauthorizedError struct {
	Principal string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnauthorized, e.Principal)
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// Kind classifies err for boundary layers. It returns "" for nil and
// "internal" for errors outside the enumerated kinds.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrObjectUnknown):
		return "object_unknown"
	case errors.Is(err, ErrObjectExists):
		return "object_exists"
	case errors.Is(err, ErrIllegalState):
		return "illegal_state"
	case errors.Is(err, ErrIllegalArgument):
		return "illegal_argument"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}
