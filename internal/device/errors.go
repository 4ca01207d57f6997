package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a device ID does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrUnidentified is returned when registering a session whose device
	// never completed an INFO exchange and therefore has no id.
	ErrUnidentified = errors.New("device: unidentified session")
)
