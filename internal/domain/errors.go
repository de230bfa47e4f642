package domain

import (
	"errors"
	"fmt"
)

// ErrorKind separates policy rejections from upstream failures so callers can
// branch without string matching.
type ErrorKind string

// Error kinds
const (
	KindPolicy       ErrorKind = "policy_rejection"
	KindUpstream     ErrorKind = "upstream_failure"
	KindInvalid      ErrorKind = "invalid_request"
	KindNotFound     ErrorKind = "not_found"
	KindInvalidState ErrorKind = "invalid_state"
	KindUnknown      ErrorKind = "unknown"
)

// Error is the typed error returned by every trading component.
type Error struct {
	Kind   ErrorKind
	Op     string // operation, e.g. "dca.create"
	Reason string // human readable
	Err    error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindPolicy}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// Policy returns a safety or filter rejection.
func Policy(op, reason string) error {
	return &Error{Kind: KindPolicy, Op: op, Reason: reason}
}

// Upstream wraps a failure from the aggregator, RPC node or price feed.
func Upstream(op string, err error) error {
	return &Error{Kind: KindUpstream, Op: op, Err: err}
}

// Invalid returns a request validation error.
func Invalid(op, format string, args ...interface{}) error {
	return &Error{Kind: KindInvalid, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// NotFound returns an unknown-entity error.
func NotFound(op, what, id string) error {
	return &Error{Kind: KindNotFound, Op: op, Reason: fmt.Sprintf("%s %s not found", what, id)}
}

// InvalidState returns an error for operations not allowed in the current state.
func InvalidState(op, format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidState, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsPolicy reports whether err is a policy rejection.
func IsPolicy(err error) bool { return KindOf(err) == KindPolicy }

// IsUpstream reports whether err is an upstream failure.
func IsUpstream(err error) bool { return KindOf(err) == KindUpstream }
