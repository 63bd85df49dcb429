package device

import "time"

// Device represents a controllable or monitorable entity in the home.
// This matches the database schema in migrations/20260830_120000_initial_schema.up.sql.
//
// The messaging core reads and mutates a subset of fields (state, liveness,
// error history, config) but never owns the device lifecycle: creation and
// deletion belong to the management layer.
type Device struct {
	// Identity
	ID     string `json:"id"`
	RoomID string `json:"room_id"`
	Name   string `json:"name"`

	// Primary state
	Status bool    `json:"status"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`

	// Optional capabilities. A nil pointer means the device does not have
	// the capability; room fan-out skips it for the matching commands.
	Brightness  *float64 `json:"brightness,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`

	// Liveness
	IsOnline    bool `json:"is_online"`
	IsConnected bool `json:"is_connected"`

	// Connection metadata, reported by the device on connect.
	IPAddress       *string `json:"ip_address,omitempty"`
	MACAddress      *string `json:"mac_address,omitempty"`
	FirmwareVersion *string `json:"firmware_version,omitempty"`

	// Error history
	LastError   *string    `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`

	// LastSeenAt is stamped on every successful mutation and heartbeat.
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`

	// Config holds device-specific tunables (update interval, threshold)
	// as an open string-keyed mapping.
	Config Config `json:"config,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Config holds device-specific configuration as a JSON map.
type Config map[string]any

// Clone creates an independent copy of the Device.
// The config map and all pointer fields are copied so modifications to
// the clone do not affect the original.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields

	cpy.Brightness = cloneFloat(d.Brightness)
	cpy.Speed = cloneFloat(d.Speed)
	cpy.Temperature = cloneFloat(d.Temperature)
	cpy.IPAddress = cloneString(d.IPAddress)
	cpy.MACAddress = cloneString(d.MACAddress)
	cpy.FirmwareVersion = cloneString(d.FirmwareVersion)
	cpy.LastError = cloneString(d.LastError)
	cpy.LastErrorAt = cloneTime(d.LastErrorAt)
	cpy.LastSeenAt = cloneTime(d.LastSeenAt)
	cpy.Config = cloneConfig(d.Config)

	return &cpy
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cpy := *v
	return &cpy
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	cpy := *v
	return &cpy
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	cpy := *v
	return &cpy
}

// cloneConfig creates a deep copy of a config map.
// Nested maps and slices are recursively copied.
func cloneConfig(m Config) Config {
	if m == nil {
		return nil
	}
	cpy := make(Config, len(m))
	for k, v := range m {
		cpy[k] = cloneValue(v)
	}
	return cpy
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cpy := make(map[string]any, len(val))
		for k, nested := range val {
			cpy[k] = cloneValue(nested)
		}
		return cpy
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = cloneValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, float64, etc.) are safe to copy by value
		return v
	}
}

// MergeConfig shallow-merges incoming keys into the device config.
// Top-level keys overwrite; nested objects replace wholesale.
func (d *Device) MergeConfig(incoming map[string]any) {
	if d.Config == nil {
		d.Config = make(Config, len(incoming))
	}
	for k, v := range incoming {
		d.Config[k] = v
	}
}
