// Package apperr defines the closed set of error kinds shared by the store,
// the ticket state machine and the change pipeline.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error. Callers branch on Kind, never on message text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConflict is a uniqueness or condition violation.
	KindConflict
	// KindNotFound is a missing entity.
	KindNotFound
	// KindIllegalTransition is a ticket or resource status move outside the allowed edges.
	KindIllegalTransition
	// KindForbidden is an actor without the required relationship or right.
	KindForbidden
	// KindStoreUnavailable is a transient infrastructure fault. Safe to retry with backoff.
	KindStoreUnavailable
	// KindCorruptEntry is stored data that cannot be decoded. Never retried.
	KindCorruptEntry
	// KindMapping is a single change record that cannot be decoded.
	KindMapping
	// KindTransactionFailed is an atomic multi-key write that applied nothing.
	KindTransactionFailed
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindConflict:          "conflict",
	KindNotFound:          "not found",
	KindIllegalTransition: "illegal transition",
	KindForbidden:         "forbidden",
	KindStoreUnavailable:  "store unavailable",
	KindCorruptEntry:      "corrupt entry",
	KindMapping:           "mapping error",
	KindTransactionFailed: "transaction failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the typed error value carried through the core.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Err    error
}

// Sentinels for errors.Is matching. Only Kind is compared.
var (
	ErrConflict          = &Error{Kind: KindConflict}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrIllegalTransition = &Error{Kind: KindIllegalTransition}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrStoreUnavailable  = &Error{Kind: KindStoreUnavailable}
	ErrCorruptEntry      = &Error{Kind: KindCorruptEntry}
	ErrMapping           = &Error{Kind: KindMapping}
	ErrTransactionFailed = &Error{Kind: KindTransactionFailed}
)

// New creates an Error with a human-readable reason.
func New(kind Kind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap creates an Error around a cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether the caller may retry the same operation with backoff.
func Retryable(err error) bool {
	return KindOf(err) == KindStoreUnavailable
}

// PublicMessage returns the text that may be shown at the collaborator boundary.
// Rejections carry their reason; infrastructure faults never leak storage detail.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	switch e.Kind {
	case KindIllegalTransition, KindForbidden, KindConflict, KindNotFound:
		if e.Reason != "" {
			return e.Reason
		}
		return e.Kind.String()
	case KindStoreUnavailable, KindTransactionFailed:
		return "service temporarily unavailable, please retry"
	default:
		return "internal error"
	}
}
