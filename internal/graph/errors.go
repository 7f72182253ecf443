package graph

import (
	"fmt"
)

type Kind int

const (
	KindTransient Kind = iota
	KindAuth
	KindNotFound
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindUnsupported:
		return "unsupported"
	default:
		return "transient"
	}
}

// Error is a classified failure of a single remote operation.
//
// Use with [errors.Is] against the sentinel values below; the wrapped cause stays reachable via [errors.Unwrap].
type Error struct {
	Kind Kind

	// Remote operation which failed, eg "app.bsky.graph.getFollowers" (optional)
	Op string

	Err error
}

var (
	// Credentials rejected, or the session response was missing tokens.
	ErrAuth = &Error{Kind: KindAuth}

	// Actor or record does not exist.
	ErrNotFound = &Error{Kind: KindNotFound}

	// Failure of one call; the caller skips the action and continues.
	ErrTransient = &Error{Kind: KindTransient}

	// The service (or the session's token scope) does not support direct messages.
	ErrUnsupported = &Error{Kind: KindUnsupported}
)

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Op)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so that wrapped errors compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Wrap classifies err as kind, recording the failed operation.
func Wrap(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
