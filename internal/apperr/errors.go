// Package apperr defines the error kinds every service operation reports.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindAuthorization       Kind = "authorization"
	KindInvalidTransition   Kind = "invalid_transition"
	KindNotFound            Kind = "not_found"
	KindStore               Kind = "store"
	KindPartialRegistration Kind = "partial_registration"
)

// Error is a classified failure of a service operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Step names the registration step that failed (partial registration only).
	Step string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports a malformed or missing field.
func Validation(op, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Forbidden reports a caller lacking role or ownership.
func Forbidden(op, format string, args ...interface{}) error {
	return &Error{Kind: KindAuthorization, Op: op, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition reports a state machine rejection.
func InvalidTransition(op, format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidTransition, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an absent entity.
func NotFound(op, what string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: what + " not found"}
}

// Store wraps a persistence failure. Already classified errors pass through.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStore, Op: op, Message: "storage unavailable", Err: err}
}

// PartialRegistration reports a registration that failed at step after
// earlier steps already committed.
func PartialRegistration(step string, err error) error {
	return &Error{
		Kind:    KindPartialRegistration,
		Op:      "register",
		Message: fmt.Sprintf("registration failed at step %q", step),
		Step:    step,
		Err:     err,
	}
}

// KindOf returns the kind of err. Unclassified errors count as store errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindStore
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StepOf returns the failed registration step, if any.
func StepOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Step
	}
	return ""
}
