package fetcher

import (
	"errors"
	"fmt"
)

// ErrorKind classifies transport failures. The kinds drive different retry
// policy, so a timeout must stay distinguishable from a connection failure
// or a non-success status.
type ErrorKind string

const (
	ErrKindTimeout     ErrorKind = "timeout"
	ErrKindConnection  ErrorKind = "connection"
	ErrKindHTTPStatus  ErrorKind = "http_status"
	ErrKindAuth        ErrorKind = "auth"
	ErrKindContentType ErrorKind = "content_type"
	ErrKindConfig      ErrorKind = "config"
)

// TransportError wraps a fetch failure with its classification.
type TransportError struct {
	Kind ErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error) *TransportError {
	return &TransportError{Kind: kind, Err: err}
}

// KindOf returns the transport error kind, or "" for non-transport errors.
func KindOf(err error) ErrorKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
