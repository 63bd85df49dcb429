package command

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/homelink-io/homelink-core/internal/device"
)

// Type identifies a command in the device control vocabulary.
type Type string

// The full command vocabulary. These are wire values: devices and
// clients put them in the "command" field of a control payload.
const (
	TypeSetStatus        Type = "set_status"
	TypeSetValue         Type = "set_value"
	TypeSetBrightness    Type = "set_brightness"
	TypeSetSpeed         Type = "set_speed"
	TypeSetTemperature   Type = "set_temperature"
	TypeUpdateConfig     Type = "update_config"
	TypeDeviceConnect    Type = "device_connect"
	TypeDeviceDisconnect Type = "device_disconnect"
	TypeGetStatus        Type = "get_status"
	TypeGetInfo          Type = "get_info"
	TypeSyncTime         Type = "sync_time"
	TypeTurnOnAll        Type = "turn_on_all"
	TypeTurnOffAll       Type = "turn_off_all"
)

// Message is the wire shape of an inbound command payload.
// Value is kept raw because its type depends on the command.
type Message struct {
	MessageID string          `json:"message_id,omitempty"`
	Command   string          `json:"command"`
	Value     json.RawMessage `json:"value,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Command is the decoded, typed form of a control message.
//
// The implementation set is closed: Decode is the only constructor path
// and the processor switches over every concrete type, so an
// unrecognised command can only surface as ErrUnsupportedCommand, never
// as a silent no-op.
type Command interface {
	Type() Type
	sealed()
}

// SetStatus switches a device on or off. When Toggle is set the current
// persisted status is negated instead.
type SetStatus struct {
	Toggle bool
	Status bool
}

// SetValue stores a raw numeric reading or setpoint.
type SetValue struct {
	Value float64
}

// SetBrightness adjusts a dimmable device. Applied values are clamped
// to [0,100].
type SetBrightness struct {
	Level float64
}

// SetSpeed adjusts a variable-speed device. Applied values are clamped
// to [0,100].
type SetSpeed struct {
	Level float64
}

// SetTemperature stores a temperature setpoint. No clamping: the domain
// has no fixed bounds.
type SetTemperature struct {
	Degrees float64
}

// UpdateConfig shallow-merges a patch into the device config.
type UpdateConfig struct {
	Patch map[string]any
}

// Connect marks a device connected and online, optionally recording
// network metadata the device announced.
type Connect struct {
	IPAddress       *string
	MACAddress      *string
	FirmwareVersion *string
}

// Disconnect marks a device disconnected and offline.
type Disconnect struct{}

// GetStatus requests an immediate status publish without mutation.
type GetStatus struct{}

// GetInfo requests an immediate full-metadata publish without mutation.
type GetInfo struct{}

// SyncTime overwrites the device config with the server time and the
// site's resolved timezone.
type SyncTime struct{}

// TurnOnAll is a broadcast-only command: routed to a single device it
// is rejected with ErrUnsupportedCommand.
type TurnOnAll struct{}

// TurnOffAll is a broadcast-only command: routed to a single device it
// is rejected with ErrUnsupportedCommand.
type TurnOffAll struct{}

func (SetStatus) Type() Type      { return TypeSetStatus }
func (SetValue) Type() Type       { return TypeSetValue }
func (SetBrightness) Type() Type  { return TypeSetBrightness }
func (SetSpeed) Type() Type       { return TypeSetSpeed }
func (SetTemperature) Type() Type { return TypeSetTemperature }
func (UpdateConfig) Type() Type   { return TypeUpdateConfig }
func (Connect) Type() Type        { return TypeDeviceConnect }
func (Disconnect) Type() Type     { return TypeDeviceDisconnect }
func (GetStatus) Type() Type      { return TypeGetStatus }
func (GetInfo) Type() Type        { return TypeGetInfo }
func (SyncTime) Type() Type       { return TypeSyncTime }
func (TurnOnAll) Type() Type      { return TypeTurnOnAll }
func (TurnOffAll) Type() Type     { return TypeTurnOffAll }

func (SetStatus) sealed()      {}
func (SetValue) sealed()       {}
func (SetBrightness) sealed()  {}
func (SetSpeed) sealed()       {}
func (SetTemperature) sealed() {}
func (UpdateConfig) sealed()   {}
func (Connect) sealed()        {}
func (Disconnect) sealed()     {}
func (GetStatus) sealed()      {}
func (GetInfo) sealed()        {}
func (SyncTime) sealed()       {}
func (TurnOnAll) sealed()      {}
func (TurnOffAll) sealed()     {}

// Decode parses a raw control payload into a typed Command.
//
// Returns:
//   - Command: The decoded command on success
//   - error: ValidationError for structural problems,
//     ErrUnsupportedCommand for names outside the vocabulary
func Decode(payload []byte) (Command, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, invalid("payload is not a valid JSON object")
	}
	return DecodeMessage(msg)
}

// DecodeMessage converts an already-parsed Message into a typed Command.
func DecodeMessage(msg Message) (Command, error) {
	switch Type(msg.Command) {
	case TypeSetStatus:
		return decodeSetStatus(msg.Value)
	case TypeSetValue:
		n, err := decodeNumber(msg.Value, "set_value")
		if err != nil {
			return nil, err
		}
		return SetValue{Value: n}, nil
	case TypeSetBrightness:
		n, err := decodeNumber(msg.Value, "set_brightness")
		if err != nil {
			return nil, err
		}
		return SetBrightness{Level: n}, nil
	case TypeSetSpeed:
		n, err := decodeNumber(msg.Value, "set_speed")
		if err != nil {
			return nil, err
		}
		return SetSpeed{Level: n}, nil
	case TypeSetTemperature:
		n, err := decodeNumber(msg.Value, "set_temperature")
		if err != nil {
			return nil, err
		}
		return SetTemperature{Degrees: n}, nil
	case TypeUpdateConfig:
		return decodeUpdateConfig(msg.Value)
	case TypeDeviceConnect:
		return decodeConnect(msg.Value)
	case TypeDeviceDisconnect:
		return Disconnect{}, nil
	case TypeGetStatus:
		return GetStatus{}, nil
	case TypeGetInfo:
		return GetInfo{}, nil
	case TypeSyncTime:
		return SyncTime{}, nil
	case TypeTurnOnAll:
		return TurnOnAll{}, nil
	case TypeTurnOffAll:
		return TurnOffAll{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCommand, msg.Command)
	}
}

// decodeSetStatus accepts a boolean or the literal string "toggle".
func decodeSetStatus(raw json.RawMessage) (Command, error) {
	if len(raw) == 0 {
		return nil, invalid("set_status requires a value")
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return SetStatus{Status: b}, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s == "toggle" {
		return SetStatus{Toggle: true}, nil
	}

	return nil, invalid(`set_status value must be a boolean or "toggle"`)
}

// decodeNumber coerces a JSON number or numeric string to a float.
// NaN is rejected: it is not a storable reading.
func decodeNumber(raw json.RawMessage, name string) (float64, error) {
	if len(raw) == 0 {
		return 0, invalid(name + " requires a numeric value")
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parsed, perr := strconv.ParseFloat(s, 64)
		if perr == nil && !math.IsNaN(parsed) {
			return parsed, nil
		}
	}

	return 0, invalid(name + " value is not coercible to a number")
}

func decodeUpdateConfig(raw json.RawMessage) (Command, error) {
	if len(raw) == 0 {
		return nil, invalid("update_config requires a config object")
	}
	var patch map[string]any
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, invalid("update_config value must be an object")
	}
	return UpdateConfig{Patch: patch}, nil
}

// decodeConnect tolerates a missing value: a bare device_connect is the
// common case, metadata is optional.
func decodeConnect(raw json.RawMessage) (Command, error) {
	if len(raw) == 0 {
		return Connect{}, nil
	}
	var meta struct {
		IPAddress       *string `json:"ip_address"`
		MACAddress      *string `json:"mac_address"`
		FirmwareVersion *string `json:"firmware_version"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, invalid("device_connect value must be a metadata object")
	}
	return Connect{
		IPAddress:       meta.IPAddress,
		MACAddress:      meta.MACAddress,
		FirmwareVersion: meta.FirmwareVersion,
	}, nil
}

// Supports reports whether a device carries the capability a command
// targets. Room fan-out uses this to skip devices that lack the field;
// device-addressed commands are applied regardless.
func Supports(d *device.Device, cmd Command) bool {
	switch cmd.(type) {
	case SetBrightness:
		return d.Brightness != nil
	case SetSpeed:
		return d.Speed != nil
	case SetTemperature:
		return d.Temperature != nil
	default:
		return true
	}
}

// PerDevice maps a broadcast-only command to its per-device equivalent.
// Commands that are already device-applicable pass through unchanged.
func PerDevice(cmd Command) Command {
	switch cmd.(type) {
	case TurnOnAll:
		return SetStatus{Status: true}
	case TurnOffAll:
		return SetStatus{Status: false}
	default:
		return cmd
	}
}

// TimeConfig is the configuration payload sync_time writes to a device
// and forwards to it: the server's current time and the site timezone.
func TimeConfig(now time.Time, timezone string) map[string]any {
	return map[string]any{
		"time":     now.Format(time.RFC3339),
		"timezone": timezone,
	}
}

// Value returns the wire value a command carries, used when a room
// broadcast is re-encoded and forwarded to individual device control
// topics. Commands without a value return nil.
func Value(cmd Command) any {
	switch c := cmd.(type) {
	case SetStatus:
		if c.Toggle {
			return "toggle"
		}
		return c.Status
	case SetValue:
		return c.Value
	case SetBrightness:
		return c.Level
	case SetSpeed:
		return c.Level
	case SetTemperature:
		return c.Degrees
	case UpdateConfig:
		return c.Patch
	default:
		return nil
	}
}
