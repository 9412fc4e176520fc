package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an application error for the HTTP edge
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// AppError represents an application error
type AppError struct {
	Kind    Kind        `json:"-"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Validation reports a missing or malformed input. details usually carries
// the field-level violations.
func Validation(message string, details interface{}) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Message: message,
		Details: details,
	}
}

// Conflict reports a unique key collision on field.
func Conflict(field string, err error) *AppError {
	return &AppError{
		Kind:    KindConflict,
		Message: fmt.Sprintf("%s already exists", field),
		Details: field,
		Err:     err,
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NotFoundf builds a not-found error with a custom message.
func NotFoundf(format string, args ...interface{}) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// AsAppError extracts an *AppError from err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// Is and As are passthroughs so callers need not import both packages.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
