package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/homelink-io/homelink-core/internal/publish"
)

// ErrInvalidTopic is returned for topics outside the home/... grammar.
// Callers on the ingestion path log and drop; they never raise it to
// the transport.
var ErrInvalidTopic = errors.New("routing: invalid topic")

// Kind is the message type a topic addresses.
type Kind string

const (
	// KindStatus is a device-scoped state report.
	KindStatus Kind = "status"
	// KindControl is a device-scoped command.
	KindControl Kind = "control"
	// KindBroadcast is a room-wide command.
	KindBroadcast Kind = "broadcast"
	// KindConfig is a room-wide configuration merge.
	KindConfig Kind = "config"
)

// Topic is a decoded topic string. DeviceID is empty for room-scoped
// kinds.
type Topic struct {
	RoomID   string
	DeviceID string
	Kind     Kind
}

// ParseTopic decodes a topic string against the home/... grammar.
//
// Returns:
//   - Topic: The decoded topic on success
//   - error: ErrInvalidTopic for any other shape
func ParseTopic(topic string) (Topic, error) {
	parts := strings.Split(topic, "/")

	switch len(parts) {
	case 3:
		if parts[0] != publish.TopicPrefix || parts[1] == "" {
			return Topic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
		}
		switch Kind(parts[2]) {
		case KindBroadcast, KindConfig:
			return Topic{RoomID: parts[1], Kind: Kind(parts[2])}, nil
		}
		return Topic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)

	case 4:
		if parts[0] != publish.TopicPrefix || parts[1] == "" || parts[2] == "" {
			return Topic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
		}
		switch Kind(parts[3]) {
		case KindStatus, KindControl:
			return Topic{RoomID: parts[1], DeviceID: parts[2], Kind: Kind(parts[3])}, nil
		}
		return Topic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)

	default:
		return Topic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
}
