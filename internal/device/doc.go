// Package device defines the device model and the narrow persistence
// contract the messaging core consumes.
//
// Device lifecycle (creation, deletion, room assignment) is owned by the
// management layer; this package exposes only read, field mutation, and
// save operations. The SQLite implementation stores devices in the
// devices table created by the embedded migrations.
//
// # Liveness invariant
//
// IsConnected=false must imply the device is not tracked by the presence
// registry. While a device is tracked, the persisted IsOnline/IsConnected
// flags are a downstream projection of the registry, not the source of
// truth.
package device
