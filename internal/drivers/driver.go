package drivers

import (
	"context"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/supervision"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/zwave"
)

// Capability actions accepted over the command topic.
const (
	ActionOpen                = "open"
	ActionClose               = "close"
	ActionSetPosition         = "set_position"
	ActionStartPositionChange = "start_position_change"
	ActionStopPositionChange  = "stop_position_change"
	ActionRefresh             = "refresh"
	ActionConfigure           = "configure"
	ActionCalibrate           = "calibrate"
	ActionSetParameter        = "set_parameter"
)

// Directions for start_position_change.
const (
	DirectionOpen  = "open"
	DirectionClose = "close"
)

// Command is one parsed capability command from the bridge.
type Command struct {
	Action    string
	Position  int
	Direction string
	Parameter byte
	Value     int64
	// Overrides carries per-parameter values for a configure push.
	Overrides map[byte]int64
}

// Commander sends commands toward a device, supervised or not. The
// supervision manager satisfies this.
type Commander interface {
	Send(ctx context.Context, deviceID string, cmd zwave.Command, endpoint byte, secure bool, cb supervision.Callback) error
	SendUnsupervised(ctx context.Context, deviceID string, cmd zwave.Command, endpoint byte, secure bool) error
}

// TelemetryWriter records numeric readings in the time-series store.
// The InfluxDB client satisfies this; a nil writer disables telemetry.
type TelemetryWriter interface {
	WriteSensorReading(deviceID, measurement string, value float64, unit string)
	WriteEnergyReading(deviceID string, powerWatts, energyKWh float64)
}

// Driver binds one device record to its capability surface and report
// handling.
type Driver interface {
	// DeviceID returns the configured device identifier.
	DeviceID() string
	// Profile returns the driver profile name.
	Profile() string
	// Versions returns the command class version table used to decode
	// this device's reports.
	Versions() zwave.VersionTable
	// Execute performs one capability command.
	Execute(ctx context.Context, cmd Command) error
	// HandleReport processes one decoded inbound command from the
	// device. Unrecognized commands are logged and dropped.
	HandleReport(ctx context.Context, c zwave.Command)
}

// clampPosition bounds a user-supplied position to the valid level
// range.
func clampPosition(p int) byte {
	if p < int(zwave.LevelMin) {
		return zwave.LevelMin
	}
	if p > int(zwave.LevelMax) {
		return zwave.LevelMax
	}
	return byte(p)
}
