package mqtt

import "fmt"

// Topic scheme for the Z-Wave bridge.
//
// All bridge topics use the flat scheme: zwbridge/{category}/zwave/{device_id}.
// State topics are retained so late subscribers see the last known state;
// command and ack topics are not.
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "zwbridge"

	// Protocol is the protocol segment used in all bridge topics.
	Protocol = "zwave"
)

// Topics provides builders for bridge MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// Command returns the topic on which commands for a device arrive.
//
// Example: zwbridge/command/zwave/gate-front
func (Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, deviceID)
}

// CommandWildcard returns the subscription pattern matching all device
// command topics.
func (Topics) CommandWildcard() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, Protocol)
}

// State returns the topic for device state updates.
//
// Example: zwbridge/state/zwave/gate-front
func (Topics) State(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, deviceID)
}

// Ack returns the topic for command acknowledgements.
//
// Example: zwbridge/ack/zwave/gate-front
func (Topics) Ack(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, deviceID)
}

// Telemetry returns the topic for numeric sensor readings.
//
// Example: zwbridge/telemetry/zwave/sensor-garden
func (Topics) Telemetry(deviceID string) string {
	return fmt.Sprintf("%s/telemetry/%s/%s", TopicPrefix, Protocol, deviceID)
}

// Health returns the topic for bridge health status messages.
func (Topics) Health(bridgeID string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, bridgeID)
}

// SystemStatus returns the topic for bridge online/offline status (LWT).
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}
