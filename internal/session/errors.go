package session

import (
	"errors"

	"wafa/internal/storage"
)

// Kind is the stable machine-readable error class. The values double as
// problem types on the HTTP surface.
type Kind string

const (
	KindNotReady       Kind = "client-not-ready"
	KindLoggedOut      Kind = "client-logged-out"
	KindUnexpected     Kind = "client-error"
	KindDeliveryFailed Kind = "delivery-failed"
	KindStorage        Kind = "storage-error"
)

var kindTitles = map[Kind]string{
	KindNotReady:       "Messaging client is not ready.",
	KindLoggedOut:      "Messaging client is logged out.",
	KindUnexpected:     "Messaging client encountered an error.",
	KindDeliveryFailed: "Message could not be delivered.",
	KindStorage:        "Session storage failed.",
}

// Error is a session failure with a human title and detail.
type Error struct {
	Kind   Kind
	Title  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Detail + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotReady       = &Error{Kind: KindNotReady}
	ErrLoggedOut      = &Error{Kind: KindLoggedOut}
	ErrUnexpected     = &Error{Kind: KindUnexpected}
	ErrDeliveryFailed = &Error{Kind: KindDeliveryFailed}
	ErrStorage        = &Error{Kind: KindStorage}
)

func newError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Title: kindTitles[kind], Detail: detail, Err: err}
}

// KindOf classifies err. Storage errors from the credential store map to
// KindStorage; anything else unknown maps to KindUnexpected.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, storage.ErrStorage) {
		return KindStorage
	}
	return KindUnexpected
}
