package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by stores on a unique key violation.
	ErrAlreadyExists = errors.New("already exists")
)

// ErrorKind classifies errors surfaced to clients.
type ErrorKind int

const (
	KindServerError ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTooManyRequests:
		return "too_many_requests"
	default:
		return "server_error"
	}
}

// Error is an error with a client-facing kind and message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
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

// KindOf returns the kind of err, or KindServerError for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServerError
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

func NewBadRequest(msg string) error {
	return &Error{Kind: KindBadRequest, Message: msg}
}

func NewUnauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func NewForbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func NewNotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func NewConflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func NewTooManyRequests(msg string) error {
	return &Error{Kind: KindTooManyRequests, Message: msg}
}

// NewServerError wraps err; the message sent to clients stays generic.
func NewServerError(err error) error {
	return &Error{Kind: KindServerError, Message: "internal server error", Err: err}
}
