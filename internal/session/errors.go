package session

import "errors"

// Error kinds returned by session operations. Callers branch with
// errors.Is; a session never panics on a misbehaving device.
var (
	// ErrNotConnected is returned when an operation needs a live
	// connection and none exists. No I/O has been performed.
	ErrNotConnected = errors.New("session: not connected")

	// ErrTimeout is returned when every request attempt expired without
	// a matching reply.
	ErrTimeout = errors.New("session: request timed out")

	// ErrIO is returned on a connection-level failure. The session has
	// already disconnected.
	ErrIO = errors.New("session: connection failure")

	// ErrProtocol is returned when the device sent something the codec
	// cannot make sense of.
	ErrProtocol = errors.New("session: protocol error")
)
