// Package routing decodes inbound topics and dispatches messages.
//
// Every publish the broker accepts flows through the Router exactly
// once. The topic grammar has two shapes:
//
//	home/{roomId}/{deviceId}/status|control   device-scoped
//	home/{roomId}/broadcast|config            room-scoped
//
// Malformed topics and payloads are logged and dropped: a bad message
// never crashes the gateway and never affects unrelated devices.
// Control messages for a known device surface their errors into that
// device's history via the command processor.
package routing
