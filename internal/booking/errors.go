package booking

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures so callers can react without
// parsing messages.
type ErrorKind string

const (
	KindInvalidTransition          ErrorKind = "invalid_transition"
	KindInvalidState               ErrorKind = "invalid_state"
	KindStaleProposal              ErrorKind = "stale_proposal"
	KindDeadlineAlreadyPassed      ErrorKind = "deadline_already_passed"
	KindNegotiationLimitExceeded   ErrorKind = "negotiation_limit_exceeded"
	KindStoreUnavailable           ErrorKind = "store_unavailable"
	KindNotificationDeliveryFailed ErrorKind = "notification_delivery_failed"
	KindUnauthorizedActor          ErrorKind = "unauthorized_actor"
	KindNotFound                   ErrorKind = "not_found"
	KindInvalidInput               ErrorKind = "invalid_input"
	KindConflict                   ErrorKind = "conflict"
)

// Error is returned by every Engine operation that fails. Op names the
// operation, Msg is safe to show to the acting user and Err carries the
// underlying cause when there is one.
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidTransition          = &Error{Kind: KindInvalidTransition}
	ErrInvalidState               = &Error{Kind: KindInvalidState}
	ErrStaleProposal              = &Error{Kind: KindStaleProposal}
	ErrDeadlineAlreadyPassed      = &Error{Kind: KindDeadlineAlreadyPassed}
	ErrNegotiationLimitExceeded   = &Error{Kind: KindNegotiationLimitExceeded}
	ErrStoreUnavailable           = &Error{Kind: KindStoreUnavailable}
	ErrNotificationDeliveryFailed = &Error{Kind: KindNotificationDeliveryFailed}
	ErrUnauthorizedActor          = &Error{Kind: KindUnauthorizedActor}
	ErrNotFound                   = &Error{Kind: KindNotFound}
	ErrInvalidInput               = &Error{Kind: KindInvalidInput}
	ErrConflict                   = &Error{Kind: KindConflict}
)

func newError(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: string(kind), Err: err}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NeedsRefresh reports whether err means the caller acted on an outdated
// view of the booking and should reload it before trying again.
func NeedsRefresh(err error) bool {
	switch KindOf(err) {
	case KindStaleProposal, KindDeadlineAlreadyPassed, KindConflict:
		return true
	}
	return false
}
