package registry

import "errors"

// Kind is a stable category for programmatic error handling.
//
// The gateway boundary maps each Kind to an HTTP status; callers should
// branch on Kind rather than matching error strings.
type Kind string

const (
	KindValidation Kind = "Validation"
	KindAuth       Kind = "Auth"
	KindDecode     Kind = "Decode"
	KindNotFound   Kind = "NotFound"
	KindBackend    Kind = "Backend"
	KindInternal   Kind = "Internal"
)

// Error is the structured error type carried across package boundaries.
//
// Message is intended for humans; do not match on it. Use errors.As to
// extract *Error, or KindOf for the common case.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError creates a kinded error with no cause.
func NewError(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// WrapError creates a kinded error wrapping cause.
func WrapError(kind Kind, msg string, cause error) error {
	if cause == nil {
		return NewError(kind, msg)
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf extracts the Kind from err. Errors that carry no Kind yield the
// empty string; the boundary treats those as unclassified rather than
// guessing a category.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
