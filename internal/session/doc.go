// Package session manages the TCP connection to a single device.
//
// A session moves through three states: disconnected, connecting, and
// connected. Connect dials the device, runs the identification exchange,
// and resolves catalog metadata; Query and Control then ride the same
// connection, one request at a time. Failures surface as error kinds
// (ErrNotConnected, ErrTimeout, ErrIO, ErrProtocol) checked with
// errors.Is, and any I/O fault mid-exchange disconnects immediately.
//
// Reply correlation relies on the per-request token: a reply whose token
// does not match the outstanding request is a stale answer to an earlier
// attempt and is dropped without consuming the retry.
package session
