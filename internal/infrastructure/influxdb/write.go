package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorReading writes a single sensor measurement to InfluxDB.
//
// Used for the multisensor's battery, temperature and illuminance readings.
// The write is non-blocking; data is batched and flushed asynchronously.
//
// Example:
//
//	client.WriteSensorReading("sensor-garden", "temperature", 21.5, "C")
func (c *Client) WriteSensorReading(deviceID, measurement string, value float64, unit string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
			"unit":        unit,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteEnergyReading writes a power/energy measurement from a metering
// device (the shutter controller reports both).
//
// energyKWh of 0 is treated as unknown and omitted.
func (c *Client) WriteEnergyReading(deviceID string, powerWatts, energyKWh float64) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"power_watts": powerWatts,
	}
	if energyKWh > 0 {
		fields["energy_kwh"] = energyKWh
	}

	point := write.NewPoint(
		"energy",
		map[string]string{
			"device_id": deviceID,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
