// Package influxdb records sensor telemetry in InfluxDB v2.
//
// The bridge writes numeric readings (battery, temperature, illuminance,
// power, energy) as they arrive from devices. Writes are batched and
// asynchronous; the integration is optional and controlled by config.
//
// Semantic device states (open/closed/opening/...) are not written here -
// they are published over MQTT and belong to the core's state history, not
// to the telemetry store.
package influxdb
