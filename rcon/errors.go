package rcon

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is against any error returned by this
// package or by the registry.
var (
	// ErrConnection is a dial or mid-operation transport failure. It is fatal
	// to the session.
	ErrConnection = errors.New("connection error")

	// ErrAuth means the server rejected the credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrNotConnected means the operation needs a connected session.
	ErrNotConnected = errors.New("not connected")

	// ErrNotAuthenticated means the operation needs an authenticated session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrProtocol marks a cause that came from an unframeable or malformed packet.
	ErrProtocol = errors.New("protocol error")
)

// Error is the error type returned by sessions and the registry. It carries
// the server identity and the failed operation alongside the error kind.
type Error struct {
	ServerID int
	Op       string
	Kind     error
	Err      error
}

// NewError builds an *Error.
//
// Parameters:
//   - serverID: The server identity the operation targeted
//   - op: The operation name, e.g. "execute"
//   - kind: One of the Err* kinds of this package
//   - cause: The underlying cause; may be nil
//
// Returns:
//   - The new error
func NewError(serverID int, op string, kind error, cause error) *Error {
	return &Error{ServerID: serverID, Op: op, Kind: kind, Err: cause}
}

// Error implements error.
func (e *Error) Error() string {
	msg := fmt.Sprintf("rcon: server %d: %s: %v", e.ServerID, e.Op, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}
