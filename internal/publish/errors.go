package publish

import "errors"

// Domain-specific errors for publish operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrBrokerUnavailable is returned when a publish is attempted before
	// a broker transport has been attached. This indicates a startup
	// ordering bug and must be surfaced, not swallowed.
	ErrBrokerUnavailable = errors.New("publish: broker transport not attached")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("publish: topic cannot be empty")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("publish: invalid QoS level (must be 0, 1, or 2)")
)
