package lifecycle

import (
	"errors"
	"fmt"
)

// Kind classifies lifecycle failures.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindAuth       Kind = "auth"
	KindDependency Kind = "dependency"
)

// Error is the error type returned by every Engine operation.
type Error struct {
	Kind   Kind
	Op     string
	Msg    string
	Fields map[string]string // Per-field problems for validation errors
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Errors that did not come from the engine count as dependency failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindDependency
}

func validationError(op, msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg, Fields: fields}
}

func notFoundError(op, msg string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: msg}
}

func dependencyError(op, msg string, err error) *Error {
	return &Error{Kind: KindDependency, Op: op, Msg: msg, Err: err}
}

// AuthError reports a missing or rejected credential.
func AuthError(op, msg string) *Error {
	return &Error{Kind: KindAuth, Op: op, Msg: msg}
}
