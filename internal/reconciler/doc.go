// Package reconciler keeps the device registry in step with the network.
//
// A periodic pass discovers the currently visible addresses, diffs them
// against the previous pass, connects devices at new addresses, removes
// devices whose address vanished, and retries registered devices that
// lost their connection. The companion Poller reads device state on its
// own cadence and feeds the shared Notifier.
//
// Both loops are fire-and-forget goroutines bound to a context; a failed
// pass logs and moves on, so one flaky device or a transient network
// fault never stops reconciliation.
package reconciler
