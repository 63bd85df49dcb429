// Package presence tracks device liveness and evicts silent devices.
//
// Devices announce themselves when they connect and refresh their
// presence on every message they send. A background sweep compares each
// tracked device's last-seen time against the configured offline
// threshold; devices that have gone silent are marked offline in the
// store, announced once via a retained status snapshot, and removed
// from tracking.
//
// The registry holds the invariant that a disconnected device is never
// tracked: callers that mark a device disconnected must untrack it.
package presence
