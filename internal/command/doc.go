// Package command decodes and applies device control messages.
//
// Inbound control payloads are decoded into a closed set of typed
// commands; anything outside the set fails with ErrUnsupportedCommand
// and anything structurally wrong fails with a ValidationError. The
// Processor applies a decoded command to a device as a serialized
// read-modify-write: commands for the same device never interleave, and
// every outcome, success or failure, is persisted before the result is
// returned.
package command
