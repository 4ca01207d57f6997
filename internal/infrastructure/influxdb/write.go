package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDatapoint records one datapoint value from a device state read.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Dropped silently when the client is not connected, matching the
// best-effort nature of telemetry.
//
// Parameters:
//   - deviceID: Device identifier
//   - dpID: Datapoint id (1=power, 4=brightness, ...)
//   - value: The raw datapoint value
func (c *Client) WriteDatapoint(deviceID string, dpID int, value int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"datapoints",
		map[string]string{
			"device_id": deviceID,
			"dp_id":     strconv.Itoa(dpID),
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSignalStrength records the wifi RSSI a device reported at
// identification time.
func (c *Client) WriteSignalStrength(deviceID string, rssi int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"signal",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"rssi": rssi,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteAvailability records a device availability transition.
//
// Parameters:
//   - deviceID: Device identifier
//   - available: true on connect, false on disconnect
func (c *Client) WriteAvailability(deviceID string, available bool) {
	if !c.IsConnected() {
		return
	}

	online := 0
	if available {
		online = 1
	}

	point := write.NewPoint(
		"availability",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"online": online,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
