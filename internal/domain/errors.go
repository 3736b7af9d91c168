// Package domain holds the error taxonomy shared by every layer of the engine.
package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound   Kind = "NOT_FOUND"
	KindConflict   Kind = "CONFLICT"
	KindValidation Kind = "VALIDATION"
	KindInternal   Kind = "INTERNAL"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrInternal   = errors.New("internal error")
)

// Error is returned by every exported engine operation. Callers branch on
// Kind (or errors.Is against the sentinels) and on Code for finer cases.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil && e.Kind == KindInternal {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrInternal:
		return e.Kind == KindInternal
	}
	return false
}

func NotFound(code, message string, details any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message, Details: details}
}

func Conflict(code, message string, details any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message, Details: details}
}

func Validation(code, message string, details any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Details: details}
}

// Internal wraps a storage or transport failure. The cause stays reachable
// through errors.Unwrap.
func Internal(err error, message string) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: message, Err: err}
}

// KindOf reports the taxonomy kind of err. Errors that are not *Error are
// treated as internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}

// AsInternal passes *Error values through untouched and wraps anything else.
func AsInternal(err error, message string) error {
	if err == nil {
		return nil
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return err
	}
	return Internal(err, message)
}
