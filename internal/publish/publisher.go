package publish

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/homelink-io/homelink-core/internal/device"
)

// maxQoS is the maximum QoS level supported.
const maxQoS = 2

// Transport is the broker-side publish surface the Publisher writes to.
// The embedded broker's inline client satisfies this directly.
type Transport interface {
	Publish(topic string, payload []byte, retain bool, qos byte) error
}

// Publisher formats and emits outbound broker messages.
//
// A Publisher is constructed before the broker starts and has the broker
// transport attached once the gateway owns it. Publishing before
// attachment fails with ErrBrokerUnavailable.
//
// Retain policy:
//   - Status snapshots are retained so new subscribers immediately
//     receive last-known state.
//   - Commands and broadcasts are not retained (they are commands, not
//     state).
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Publisher struct {
	mu        sync.RWMutex
	transport Transport

	// qos is the default quality-of-service level for status and
	// control traffic (QoS 1, at-least-once, in production).
	qos byte

	topics Topics
}

// New creates a Publisher with the given default QoS level.
func New(qos byte) *Publisher {
	if qos > maxQoS {
		qos = 1
	}
	return &Publisher{qos: qos}
}

// Attach wires the broker transport into the publisher.
// Called by the broker gateway once the server is constructed.
func (p *Publisher) Attach(t Transport) {
	p.mu.Lock()
	p.transport = t
	p.mu.Unlock()
}

// Attached reports whether a broker transport has been wired in.
func (p *Publisher) Attached() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.transport != nil
}

// Publish sends a payload to a topic with an explicit QoS and retain flag.
//
// Returns:
//   - error: ErrBrokerUnavailable if no transport is attached,
//     ErrInvalidTopic/ErrInvalidQoS for bad inputs, or the transport error.
func (p *Publisher) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	p.mu.RLock()
	t := p.transport
	p.mu.RUnlock()

	if t == nil {
		return ErrBrokerUnavailable
	}

	if err := t.Publish(topic, payload, retain, qos); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// PublishDeviceStatus publishes a retained state snapshot for a device.
//
// Retained delivery means a client subscribing after the fact still sees
// the last known state, including the final offline snapshot after a
// disconnect or sweep eviction.
func (p *Publisher) PublishDeviceStatus(d *device.Device) error {
	snapshot := Snapshot(d, time.Now())
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshalling status snapshot: %w", err)
	}
	return p.Publish(p.topics.DeviceStatus(d.RoomID, d.ID), payload, p.qos, true)
}

// PublishDeviceCommand publishes a command to a single device's control topic.
func (p *Publisher) PublishDeviceCommand(roomID, deviceID, command string, value any) error {
	payload, err := json.Marshal(p.envelope(command, value))
	if err != nil {
		return fmt.Errorf("marshalling command envelope: %w", err)
	}
	return p.Publish(p.topics.DeviceControl(roomID, deviceID), payload, p.qos, false)
}

// BroadcastRoomCommand publishes a command to a room's broadcast topic.
func (p *Publisher) BroadcastRoomCommand(roomID, command string, value any) error {
	payload, err := json.Marshal(p.envelope(command, value))
	if err != nil {
		return fmt.Errorf("marshalling broadcast envelope: %w", err)
	}
	return p.Publish(p.topics.RoomBroadcast(roomID), payload, p.qos, false)
}

// PublishRoomConfig publishes a configuration object to a room's config topic.
func (p *Publisher) PublishRoomConfig(roomID string, cfg map[string]any) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling room config: %w", err)
	}
	return p.Publish(p.topics.RoomConfig(roomID), payload, p.qos, false)
}

// envelope builds a stamped command envelope.
func (p *Publisher) envelope(command string, value any) CommandEnvelope {
	return CommandEnvelope{
		MessageID: uuid.NewString(),
		Command:   command,
		Value:     value,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
