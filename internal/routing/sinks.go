package routing

import (
	"time"

	"github.com/homelink-io/homelink-core/internal/device"
)

// TelemetrySink receives device status reports for time-series storage.
// The InfluxDB writer satisfies this; deployments without telemetry use
// NopTelemetrySink.
type TelemetrySink interface {
	WriteStatusReport(deviceID, roomID string, fields map[string]any, at time.Time)
}

// NopTelemetrySink discards status reports.
type NopTelemetrySink struct{}

// WriteStatusReport implements TelemetrySink.
func (NopTelemetrySink) WriteStatusReport(string, string, map[string]any, time.Time) {}

// EventSink receives command outcome notifications for downstream
// display surfaces.
type EventSink interface {
	// DeviceControlSucceeded reports a successfully applied command.
	DeviceControlSucceeded(d *device.Device, cmd string)

	// DeviceControlFailed reports a command that was rejected or failed
	// to apply.
	DeviceControlFailed(deviceID, roomID, cmd string, err error)

	// DeviceInfo reports a full metadata snapshot in response to an
	// explicit info request.
	DeviceInfo(d *device.Device)
}

// NopEventSink discards command outcome notifications.
type NopEventSink struct{}

// DeviceControlSucceeded implements EventSink.
func (NopEventSink) DeviceControlSucceeded(*device.Device, string) {}

// DeviceControlFailed implements EventSink.
func (NopEventSink) DeviceControlFailed(string, string, string, error) {}

// DeviceInfo implements EventSink.
func (NopEventSink) DeviceInfo(*device.Device) {}
