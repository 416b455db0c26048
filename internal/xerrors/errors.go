// Package xerrors provides the closed error-kind taxonomy shared by every
// component of the backend: the netlink transport, the TC state engine, the
// scenario executor, and the query handlers all return *Error values instead
// of ad-hoc sentinel errors, so the query-handler boundary can translate them
// into operator-visible responses by switching on Code rather than matching
// strings.
package xerrors

import "fmt"

// Code identifies the kind of failure, never its textual message.
type Code int

const (
	// PermissionDenied indicates the backend lacks the privilege to perform
	// the requested netlink/TC operation. Never retried.
	PermissionDenied Code = iota + 1

	// UnknownInterface indicates the target (namespace, interface) pair is
	// not present in the catalog.
	UnknownInterface

	// InterfaceGone indicates the target vanished mid-operation.
	InterfaceGone

	// InvalidScenario indicates a scenario failed static validation.
	InvalidScenario

	// AlreadyRunning indicates a scenario start collided with a non-terminal
	// execution already registered on the same (namespace, interface) key.
	AlreadyRunning

	// BusyOrConflict indicates a transient kernel conflict (e.g. a root
	// qdisc appeared between detect and add). The caller retries once via
	// replace before surfacing this.
	BusyOrConflict

	// ProtocolError indicates a malformed or unexpected netlink exchange.
	ProtocolError

	// IoError indicates a transport-level failure: timeout, socket error,
	// namespace fd that could not be opened.
	IoError

	// NotFound indicates the requested kernel object (root qdisc, link) does
	// not exist. Swallowed on cleanup paths, surfaced elsewhere.
	NotFound
)

// String returns the stable, machine-comparable name of the code.
func (c Code) String() string {
	switch c {
	case PermissionDenied:
		return "PermissionDenied"
	case UnknownInterface:
		return "UnknownInterface"
	case InterfaceGone:
		return "InterfaceGone"
	case InvalidScenario:
		return "InvalidScenario"
	case AlreadyRunning:
		return "AlreadyRunning"
	case BusyOrConflict:
		return "BusyOrConflict"
	case ProtocolError:
		return "ProtocolError"
	case IoError:
		return "IoError"
	case NotFound:
		return "NotFound"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Error is the typed error value returned across component boundaries.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Code, so callers can
// write errors.Is(err, xerrors.New(xerrors.NotFound, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New constructs an *Error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an *Error carrying an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the Code of err, or 0 if err is not an *Error (or is nil).
func CodeOf(err error) Code {
	var e *Error
	if err == nil {
		return 0
	}
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return 0
	}
	return e.Code
}

// Is reports whether err carries the given Code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
