// Package failure defines the classified errors surfaced by the reposcope core.
package failure

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies the stable category of a failure.
type Kind string

const (
	KindInvalidReference       Kind = "invalid_reference"
	KindInvalidPath            Kind = "invalid_path"
	KindInvalidHandle          Kind = "invalid_handle"
	KindAuthOrTransportFailure Kind = "auth_or_transport_failure"
	KindCloneFailure           Kind = "clone_failure"
	KindNotFound               Kind = "not_found"
	KindInvalidTarget          Kind = "invalid_target"
	KindHandleBusy             Kind = "handle_busy"
	KindCanceled               Kind = "canceled"
	KindInternal               Kind = "internal"
)

// Error carries a failure kind, a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error returns the message followed by the cause, if any.
func (failureError *Error) Error() string {
	if failureError.Cause == nil {
		return failureError.Message
	}
	return fmt.Sprintf("%s: %v", failureError.Message, failureError.Cause)
}

// Unwrap exposes the cause.
func (failureError *Error) Unwrap() error {
	return failureError.Cause
}

// New creates a classified failure.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Newf creates a classified failure without a cause using a format string.
func Newf(kind Kind, format string, arguments ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, arguments...)}
}

// KindOf reports the kind of the first failure in the error chain.
// Unclassified context cancellations and deadlines report KindCanceled, and
// any other unclassified error reports KindInternal.
func KindOf(err error) Kind {
	var failureError *Error
	if errors.As(err, &failureError) {
		return failureError.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
