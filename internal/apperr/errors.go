package apperr

import (
	"context"
	"errors"
	"net"
)

// Kind classifies a failure for the bridge and the job ledger
type Kind string

const (
	KindValidation Kind = "VALIDATION" // missing or invalid request field
	KindNotFound   Kind = "NOT_FOUND"  // expected file or record absent
	KindRemote     Kind = "REMOTE"     // report service / registry answered badly
	KindTimeout    Kind = "TIMEOUT"    // network call exceeded its bound
	KindIO         Kind = "IO"         // local read/write failure
	KindInternal   Kind = "INTERNAL"
)

// Error is the error type returned across component boundaries
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error without a cause
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error around cause
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain.
// Deadline and net timeouts without an *Error report KindTimeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if IsTimeoutErr(err) {
		return KindTimeout
	}
	return KindInternal
}

// IsTimeoutErr reports whether err is a deadline or network timeout
func IsTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsRemote(err error) bool     { return KindOf(err) == KindRemote }
func IsTimeout(err error) bool    { return KindOf(err) == KindTimeout }
func IsIO(err error) bool         { return KindOf(err) == KindIO }

// Message returns the human readable part of err, without the cause chain
// for *Error values. Used for frames shown to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal || e.Cause == nil {
			return e.Message
		}
		return e.Error()
	}
	return err.Error()
}
