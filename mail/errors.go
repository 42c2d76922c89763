package mail

import (
	"github.com/pkg/errors"
)

// Kind classifies transport failures.
type Kind string

const (
	KindAuth           Kind = "auth"            // credentials rejected
	KindNetwork        Kind = "network"         // dial, TLS or connection failure
	KindRejected       Kind = "rejected"        // server refused sender, recipient or data
	KindInvalidMessage Kind = "invalid_message" // message could not be encoded
	KindClosed         Kind = "closed"          // session already closed
	KindCanceled       Kind = "canceled"        // never submitted because the run was canceled
	KindUnknown        Kind = "unknown"
)

// ErrClosed is returned by a Sender after Close.
var ErrClosed = NewError(KindClosed, errors.New("sender is closed"))

// Error is a transport failure of a known kind.
type Error struct {
	Kind Kind
	Err  error
}

// NewError wraps err with kind. A nil err yields nil.
func NewError(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of err, KindUnknown if err carries none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
