package inet

import (
	"errors"
	"fmt"
)

// Common errors for the endpoint layer.
var (
	// ErrPoolExhausted indicates no endpoint slot is free. Recoverable:
	// the caller rejects the work or retries after releasing an endpoint.
	ErrPoolExhausted = errors.New("endpoint pool exhausted")

	// ErrInvalidState indicates the operation is illegal in the
	// endpoint's current state. A caller programming error; never retried
	// internally.
	ErrInvalidState = errors.New("operation invalid in current state")

	// ErrInvalidArgument indicates a malformed address, port, or length.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEndpointReleased indicates a handle whose slot has been returned
	// to the pool. Operations on it are rejected, never undefined.
	ErrEndpointReleased = errors.New("endpoint has been released")

	// ErrPeerClosed indicates the peer reset or closed the connection.
	ErrPeerClosed = errors.New("connection closed by peer")

	// ErrConnectionAborted indicates the connection was torn down without
	// flushing pending data.
	ErrConnectionAborted = errors.New("connection aborted")

	// ErrConfiguration indicates bad bind or interface parameters. Fatal
	// to the setup attempt, surfaced synchronously.
	ErrConfiguration = errors.New("invalid endpoint configuration")
)

// Error wraps a failure with the operation and address it concerns.
type Error struct {
	Op   string // operation that caused the error
	Addr string // address if relevant
	Err  error  // underlying error
}

func (e *Error) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("inet %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("inet %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, addr string, err error) *Error {
	return &Error{Op: op, Addr: addr, Err: err}
}
