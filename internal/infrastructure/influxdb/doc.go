// Package influxdb provides time-series storage for device telemetry.
//
// Device status reports ingested by the topic router are written as
// points in the device_status measurement, tagged by device and room.
// Writes are non-blocking and batched; the router never waits on the
// time-series backend. When InfluxDB is disabled in configuration the
// router runs with a no-op sink instead.
package influxdb
