package publish

import (
	"time"

	"github.com/homelink-io/homelink-core/internal/device"
)

// CommandEnvelope is the wire shape of an outbound command message.
type CommandEnvelope struct {
	MessageID string `json:"message_id"`
	Command   string `json:"command"`
	Value     any    `json:"value,omitempty"`
	Timestamp string `json:"timestamp"`
}

// StatusSnapshot is the wire shape of a retained device state report.
// Optional capability and metadata fields are omitted when the device
// does not carry them.
type StatusSnapshot struct {
	DeviceID string `json:"device_id"`
	RoomID   string `json:"room_id"`

	Status bool    `json:"status"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`

	Brightness  *float64 `json:"brightness,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`

	IsOnline    bool `json:"is_online"`
	IsConnected bool `json:"is_connected"`

	IPAddress       *string `json:"ip_address,omitempty"`
	MACAddress      *string `json:"mac_address,omitempty"`
	FirmwareVersion *string `json:"firmware_version,omitempty"`

	Config map[string]any `json:"config,omitempty"`

	LastError  *string    `json:"last_error,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	Timestamp  string     `json:"timestamp"`
}

// Snapshot builds a StatusSnapshot from the current device state.
func Snapshot(d *device.Device, at time.Time) StatusSnapshot {
	return StatusSnapshot{
		DeviceID:        d.ID,
		RoomID:          d.RoomID,
		Status:          d.Status,
		Value:           d.Value,
		Unit:            d.Unit,
		Brightness:      d.Brightness,
		Speed:           d.Speed,
		Temperature:     d.Temperature,
		IsOnline:        d.IsOnline,
		IsConnected:     d.IsConnected,
		IPAddress:       d.IPAddress,
		MACAddress:      d.MACAddress,
		FirmwareVersion: d.FirmwareVersion,
		Config:          d.Config,
		LastError:       d.LastError,
		LastSeenAt:      d.LastSeenAt,
		Timestamp:       at.UTC().Format(time.RFC3339),
	}
}
