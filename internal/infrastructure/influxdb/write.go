package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// statusMeasurement is the measurement holding device status reports.
const statusMeasurement = "device_status"

// WriteStatusReport writes the fields of one device status report.
//
// The router calls this for every ingested status message. The write is
// non-blocking; points are batched and sent asynchronously, and reports
// arriving while disconnected are silently dropped rather than blocking
// message dispatch.
//
// Parameters:
//   - deviceID: Reporting device identifier
//   - roomID: Room the device belongs to
//   - fields: The fields the device actually reported
//   - at: Report time
func (c *Client) WriteStatusReport(deviceID, roomID string, fields map[string]any, at time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		statusMeasurement,
		map[string]string{
			"device_id": deviceID,
			"room_id":   roomID,
		},
		fields,
		at,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit WriteStatusReport, such as
// broker connection counts.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
