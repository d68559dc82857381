package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteReading mirrors one sensor reading to the time-series bucket.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Only the metric fields actually reported by the device should be passed -
// absent metrics must not appear as zeroes.
//
// Parameters:
//   - deviceID, roomID, farmID: Ownership tags for the point
//   - fields: Metric name to value (e.g., "temperature_c": 21.5)
//   - recordedAt: The reading's timestamp (device-reported or substituted)
func (c *Client) WriteReading(deviceID, roomID, farmID string, fields map[string]interface{}, recordedAt time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"device_id": deviceID,
			"room_id":   roomID,
			"farm_id":   farmID,
		},
		fields,
		recordedAt,
	)

	c.writeAPI.WritePoint(point)
}
