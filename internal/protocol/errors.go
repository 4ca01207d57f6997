package protocol

import "errors"

// Codec errors. Check with errors.Is().
var (
	// ErrUnknownCommand is returned when encoding a command kind other
	// than INFO, QUERY, or SET.
	ErrUnknownCommand = errors.New("protocol: unknown command")

	// ErrEncodeFailed is returned when request serialisation fails.
	ErrEncodeFailed = errors.New("protocol: encode failed")

	// ErrDecodeFailed is returned when a received buffer is not a valid
	// protocol message.
	ErrDecodeFailed = errors.New("protocol: decode failed")

	// ErrValueOutOfRange is returned when a datapoint value violates its
	// documented range.
	ErrValueOutOfRange = errors.New("protocol: datapoint value out of range")
)
