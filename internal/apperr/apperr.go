// Package apperr defines the error taxonomy shared by the stores, the points
// service and the HTTP handlers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindPermission
	KindNotFound
	KindConflict
	KindInsufficientBalance
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindState:
		return "state"
	default:
		return "internal"
	}
}

// Error carries a kind, a stable machine-readable code and a message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// InsufficientBalanceError is returned when a debit exceeds the balance.
type InsufficientBalanceError struct {
	Required  int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient points: required %d, available %d", e.Required, e.Available)
}

func Validation(code, msg string) error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func Permission(code, msg string) error {
	return &Error{Kind: KindPermission, Code: code, Message: msg}
}

func NotFound(code, msg string) error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func Conflict(code, msg string) error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

func State(code, msg string) error {
	return &Error{Kind: KindState, Code: code, Message: msg}
}

func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Code: "internal", Message: msg, Err: err}
}

func InsufficientBalance(required, available int64) error {
	return &InsufficientBalanceError{Required: required, Available: available}
}

// KindOf reports the kind of err. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	var ib *InsufficientBalanceError
	if errors.As(err, &ib) {
		return KindInsufficientBalance
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or "internal".
func CodeOf(err error) string {
	var ib *InsufficientBalanceError
	if errors.As(err, &ib) {
		return "insufficient_points"
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// Is reports whether err is of kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
