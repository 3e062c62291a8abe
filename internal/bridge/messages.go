package bridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/radio"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/state"
)

// protocol identifies this bridge's protocol in every message.
const protocol = "zwave"

// CommandMessage is received on the command topic to execute a
// capability action against a device.
type CommandMessage struct {
	// ID correlates the command with its acknowledgement. Generated
	// when the sender omits it.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, RFC3339).
	Timestamp time.Time `json:"timestamp"`

	// Action is the capability action, for example "open" or
	// "set_position".
	Action string `json:"action"`

	// Position is the target position for set_position.
	Position int `json:"position,omitempty"`

	// Direction is "open" or "close" for start_position_change.
	Direction string `json:"direction,omitempty"`

	// Parameter and Value drive set_parameter.
	Parameter int   `json:"parameter,omitempty"`
	Value     int64 `json:"value,omitempty"`

	// Parameters carries per-parameter overrides for configure,
	// keyed by parameter number.
	Parameters map[string]int64 `json:"parameters,omitempty"`

	// Source indicates where the command originated.
	Source string `json:"source,omitempty"`
}

// AckStatus is the outcome class of a command acknowledgement.
type AckStatus string

const (
	// AckAccepted means the command was handed to the device path.
	AckAccepted AckStatus = "accepted"
	// AckFailed means the command could not be executed.
	AckFailed AckStatus = "failed"
)

// Error codes carried by failed acknowledgements.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeUnknownDevice     = "UNKNOWN_DEVICE"
	ErrCodeRadioUnavailable  = "RADIO_UNAVAILABLE"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// AckMessage acknowledges a command on the ack topic.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError details a failed command.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage publishes one attribute change on the state topic.
// Retained so late subscribers see current state.
type StateMessage struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Attribute string    `json:"attribute"`
	Value     string    `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Protocol  string    `json:"protocol"`
}

// HealthStatus is the operational status vocabulary.
type HealthStatus string

const (
	HealthStarting  HealthStatus = "starting"
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthStopping  HealthStatus = "stopping"
	HealthOffline   HealthStatus = "offline"
)

// HealthMessage reports bridge status on the health topic. Retained,
// published on an interval.
type HealthMessage struct {
	Bridge         string            `json:"bridge"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         HealthStatus      `json:"status"`
	Version        string            `json:"version"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	Connection     *ConnectionStatus `json:"connection,omitempty"`
	Statistics     *Statistics       `json:"statistics,omitempty"`
	DevicesManaged int               `json:"devices_managed"`
	Reason         string            `json:"reason,omitempty"`
}

// ConnectionStatus describes the radio gateway connection.
type ConnectionStatus struct {
	Status       string     `json:"status"`
	Address      string     `json:"address"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// Statistics carries the gateway frame counters.
type Statistics struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesSent     uint64 `json:"frames_sent"`
	FramesDropped  uint64 `json:"frames_dropped"`
	Errors         uint64 `json:"errors"`
	Reconnects     uint64 `json:"reconnects"`
}

// NewAckMessage builds an acceptance acknowledgement for a command.
func NewAckMessage(cmd CommandMessage, deviceID string) AckMessage {
	return AckMessage{
		CommandID: commandID(cmd),
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Status:    AckAccepted,
		Protocol:  protocol,
	}
}

// NewAckError builds a failure acknowledgement.
func NewAckError(cmd CommandMessage, deviceID, code, message string) AckMessage {
	return AckMessage{
		CommandID: commandID(cmd),
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Status:    AckFailed,
		Protocol:  protocol,
		Error:     &AckError{Code: code, Message: message},
	}
}

func commandID(cmd CommandMessage) string {
	if cmd.ID != "" {
		return cmd.ID
	}
	return uuid.New().String()
}

// NewStateMessage builds a state message from an emitted event.
func NewStateMessage(e state.Event) StateMessage {
	return StateMessage{
		DeviceID:  e.DeviceID,
		Timestamp: time.Now().UTC(),
		Attribute: e.Attribute,
		Value:     e.Value,
		Unit:      e.Unit,
		Protocol:  protocol,
	}
}

// NewHealthMessage builds a health report from the gateway statistics.
func NewHealthMessage(bridgeID, version, address string, status HealthStatus, stats radio.Stats, deviceCount int, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:         bridgeID,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        version,
		UptimeSeconds:  int64(time.Since(startTime).Seconds()),
		DevicesManaged: deviceCount,
	}

	conn := &ConnectionStatus{Status: "disconnected", Address: address}
	if stats.Connected {
		conn.Status = "connected"
		last := stats.LastActivity
		conn.LastActivity = &last
	} else if stats.Reconnecting {
		conn.Status = "connecting"
	}
	msg.Connection = conn

	msg.Statistics = &Statistics{
		FramesReceived: stats.FramesRx,
		FramesSent:     stats.FramesTx,
		FramesDropped:  stats.FramesDropped,
		Errors:         stats.ErrorsTotal,
		Reconnects:     stats.ReconnectsTotal,
	}
	return msg
}

// NewLWTMessage builds the offline message the broker publishes when
// the bridge disappears without disconnecting.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}
