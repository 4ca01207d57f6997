// Package device holds the device entity, the live session registry, and
// the persistent identity store.
//
// The Registry is the in-memory source of truth for which devices currently
// have a session. The reconciliation loop is its only writer; everything
// else (API handlers, the state poller) reads concurrently through the
// Session interface.
//
// The Store persists device identity to SQLite so that a restart can seed
// discovery with last-known addresses before the first broadcast completes.
// Live state is never persisted; only identity and the last-seen address.
package device
