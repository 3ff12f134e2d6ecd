package replica

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyClients is returned when all 254 client identifiers
	// of a session have been handed out.
	ErrTooManyClients = errors.New("client identifier space exhausted")

	// ErrAuthFailed is returned when the authority rejects the
	// client's credentials during the approval handshake.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBanned is returned when the authority refuses the
	// connection because the remote address is banned.
	ErrBanned = errors.New("address is banned")

	// ErrNotConnected is returned by client requests made after the
	// connection to the authority is gone.
	ErrNotConnected = errors.New("not connected to an authority")
)

// UnregisteredTypeError reports a send with a Transfer type that was
// never registered. The sender cannot describe what it is sending, so
// this is fatal for the send path.
type UnregisteredTypeError struct {
	Name string
}

func (e *UnregisteredTypeError) Error() string {
	return fmt.Sprintf("transfer type %q is not registered", e.Name)
}

// UnknownTagError reports a received wire tag with no registered
// Transfer type behind it, usually a version mismatch between peers.
type UnknownTagError int32

func (e UnknownTagError) Error() string {
	return fmt.Sprintf("unknown transfer tag %d", int32(e))
}

// CodecError wraps any failure to encode or decode a message. The
// affected message must be dropped; the session continues.
type CodecError struct {
	Err error
}

func (e *CodecError) Error() string {
	return "message codec: " + e.Err.Error()
}

func (e *CodecError) Unwrap() error { return e.Err }
