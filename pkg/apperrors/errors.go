// Package apperrors centralizes the error taxonomy every core component
// surfaces, the Go expression of the kinds-not-type-names table the
// services agreed on: not_found, precondition_failed, validation_error,
// parse_error, agent_failure, cancelled, internal.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on it (HTTP
// status mapping, run-status transitions) without inspecting message text.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindPreconditionFailed Kind = "precondition_failed"
	KindValidation         Kind = "validation_error"
	KindParse              Kind = "parse_error"
	KindAgentFailure       Kind = "agent_failure"
	KindCancelled          Kind = "cancelled"
	KindInternal           Kind = "internal"
)

// Error is the single wrapper type used across the core. Components never
// define their own per-package sentinel hierarchy; they construct an
// *Error with the right Kind and let callers use Is/As/KindOf.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	// Details carries debugging context, e.g. the set of existing project
	// ids on a precondition_failed error (§7).
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newErr(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error {
	return newErr(KindNotFound, message, nil)
}

func PreconditionFailed(message string, details map[string]any) *Error {
	return &Error{Kind: KindPreconditionFailed, Message: message, Details: details}
}

func Validation(message string) *Error {
	return newErr(KindValidation, message, nil)
}

func Parse(message string, err error) *Error {
	return newErr(KindParse, message, err)
}

func AgentFailure(message string, err error) *Error {
	return newErr(KindAgentFailure, message, err)
}

func Cancelled(message string) *Error {
	return newErr(KindCancelled, message, nil)
}

func Internal(message string, err error) *Error {
	return newErr(KindInternal, message, err)
}

// Is reports whether err is an *Error of the given kind, unwrapping as
// needed.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindInternal for errors
// that never passed through this package.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
