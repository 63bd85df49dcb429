package publish

import "fmt"

// TopicPrefix is the root of the home topic hierarchy.
//
// Topic scheme:
//
//	home/{roomId}/{deviceId}/status   device -> broker, retained state reports
//	home/{roomId}/{deviceId}/control  broker/clients -> device, commands
//	home/{roomId}/broadcast           room-wide commands
//	home/{roomId}/config              room-wide configuration merges
const TopicPrefix = "home"

// Topics provides builders for HomeLink MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// DeviceStatus returns the retained state topic for a device.
//
// Example: home/living-room/light-1/status
func (Topics) DeviceStatus(roomID, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/status", TopicPrefix, roomID, deviceID)
}

// DeviceControl returns the command topic for a device.
//
// Example: home/living-room/light-1/control
func (Topics) DeviceControl(roomID, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/control", TopicPrefix, roomID, deviceID)
}

// RoomBroadcast returns the room-wide command topic.
//
// Example: home/living-room/broadcast
func (Topics) RoomBroadcast(roomID string) string {
	return fmt.Sprintf("%s/%s/broadcast", TopicPrefix, roomID)
}

// RoomConfig returns the room-wide configuration topic.
//
// Example: home/living-room/config
func (Topics) RoomConfig(roomID string) string {
	return fmt.Sprintf("%s/%s/config", TopicPrefix, roomID)
}

// AllDeviceStatus returns a pattern matching every device status topic.
//
// Pattern: home/+/+/status
func (Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/+/+/status", TopicPrefix)
}

// AllDeviceControl returns a pattern matching every device control topic.
//
// Pattern: home/+/+/control
func (Topics) AllDeviceControl() string {
	return fmt.Sprintf("%s/+/+/control", TopicPrefix)
}

// AllRoomBroadcasts returns a pattern matching every room broadcast topic.
//
// Pattern: home/+/broadcast
func (Topics) AllRoomBroadcasts() string {
	return fmt.Sprintf("%s/+/broadcast", TopicPrefix)
}

// AllRoomConfigs returns a pattern matching every room config topic.
//
// Pattern: home/+/config
func (Topics) AllRoomConfigs() string {
	return fmt.Sprintf("%s/+/config", TopicPrefix)
}
