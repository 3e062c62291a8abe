package drivers

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/device"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/logging"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/state"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/zwave"
)

// multisensorParameters is the motion/environment sensor configuration
// surface. Parameter 111 is the periodic report interval; parameter 41
// is a signed temperature offset in tenths of a degree.
var multisensorParameters = []Parameter{
	{Number: 3, Size: 2, Format: FormatUnsigned, Title: "Motion retrigger time (seconds)", Default: 240, Min: 10, Max: 3600},
	{Number: 4, Size: 1, Format: FormatUnsigned, Title: "Motion sensitivity", Default: 5, Min: 0, Max: 5},
	{Number: 41, Size: 2, Format: FormatSigned, Title: "Temperature offset (0.1 C)", Default: 0, Min: -100, Max: 100},
	{Number: 111, Size: 4, Format: FormatUnsigned, Title: "Report interval (seconds)", Default: 3600, Min: 300, Max: 2678400},
}

// Notification vocabulary for the home security type.
const (
	notificationHomeSecurity byte = 0x07
	eventStateIdle           byte = 0x00
	eventTampering           byte = 0x03
	eventMotionDetected      byte = 0x08
)

// Wake-up reports are directed at the controller node. The interval is
// reasserted on every wake-up so a factory-reset device converges
// without a manual configure.
const (
	controllerNodeID    byte   = 1
	defaultWakeInterval uint32 = 43200
)

// Multisensor handles a battery-powered motion and environment sensor.
// The device sleeps between wake-ups, so outbound commands are queued
// and flushed when a wake-up notification arrives; reports flow in at
// any time.
type Multisensor struct {
	id         string
	endpoint   byte
	supervised bool

	cmd       Commander
	emitter   *state.Emitter
	telemetry TelemetryWriter
	logger    *logging.Logger

	wakeInterval uint32

	mu    sync.Mutex
	queue []zwave.Command
}

// NewMultisensor builds a multisensor driver bound to a device record.
// A nil telemetry writer disables time-series forwarding.
func NewMultisensor(dev *device.Device, cmd Commander, emitter *state.Emitter, telemetry TelemetryWriter, logger *logging.Logger) *Multisensor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Multisensor{
		id:           dev.ID,
		endpoint:     dev.Endpoint,
		supervised:   dev.Supervised,
		cmd:          cmd,
		emitter:      emitter,
		telemetry:    telemetry,
		logger:       logger.With("device_id", dev.ID, "profile", device.ProfileMultisensor),
		wakeInterval: defaultWakeInterval,
	}
}

func (m *Multisensor) DeviceID() string { return m.id }

func (m *Multisensor) Profile() string { return device.ProfileMultisensor }

func (m *Multisensor) Versions() zwave.VersionTable {
	return zwave.VersionTable{
		zwave.ClassSensorMultilevel: 5,
		zwave.ClassNotification:     5,
		zwave.ClassConfiguration:    1,
		zwave.ClassBattery:          1,
		zwave.ClassWakeUp:           2,
	}
}

// Execute queues commands for the next wake-up rather than
// transmitting immediately; a sleeping device would never hear them.
func (m *Multisensor) Execute(_ context.Context, cmd Command) error {
	switch cmd.Action {
	case ActionRefresh:
		m.enqueue(
			&zwave.BatteryGet{},
			&zwave.SensorMultilevelGet{SensorType: zwave.SensorTypeTemperature},
			&zwave.SensorMultilevelGet{SensorType: zwave.SensorTypeIlluminance},
			&zwave.SensorMultilevelGet{SensorType: zwave.SensorTypeHumidity},
		)
		return nil
	case ActionConfigure:
		cmds, err := buildPush(multisensorParameters, cmd.Overrides)
		if err != nil {
			return err
		}
		m.enqueue(cmds...)
		return nil
	case ActionSetParameter:
		p, ok := find(multisensorParameters, cmd.Parameter)
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownParameter, cmd.Parameter)
		}
		set, err := p.buildSet(cmd.Value)
		if err != nil {
			return err
		}
		m.enqueue(set, p.buildGet())
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
}

func (m *Multisensor) enqueue(cmds ...zwave.Command) {
	m.mu.Lock()
	m.queue = append(m.queue, cmds...)
	queued := len(m.queue)
	m.mu.Unlock()
	m.logger.Debug("commands queued until wake-up", "queued", queued)
}

// QueuedCount reports the number of commands waiting for the next
// wake-up.
func (m *Multisensor) QueuedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Multisensor) HandleReport(ctx context.Context, c zwave.Command) {
	switch rep := c.(type) {
	case *zwave.SensorMultilevelReport:
		m.handleSensor(rep)
	case *zwave.BatteryReport:
		m.handleBattery(rep)
	case *zwave.NotificationReport:
		m.handleNotification(rep)
	case *zwave.WakeUpNotification:
		m.handleWakeUp(ctx)
	case *zwave.ConfigurationReport:
		p, ok := find(multisensorParameters, rep.Parameter)
		if !ok {
			m.logger.Debug("report for unknown parameter", "parameter", rep.Parameter, "value", rep.Value)
			return
		}
		m.logger.Info("configuration read back",
			"parameter", rep.Parameter,
			"title", p.Title,
			"value", p.DecodeExternal(rep.Value),
		)
	default:
		m.logger.Debug("unhandled command",
			"class", fmt.Sprintf("%#02x", c.CommandClassID()),
			"command", fmt.Sprintf("%#02x", c.CommandID()),
		)
	}
}

func (m *Multisensor) handleSensor(rep *zwave.SensorMultilevelReport) {
	var attribute, unit, measurement string
	switch rep.SensorType {
	case zwave.SensorTypeTemperature:
		attribute, measurement = "temperature", "temperature"
		unit = "C"
		if rep.Scale == 1 {
			unit = "F"
		}
	case zwave.SensorTypeIlluminance:
		attribute, measurement, unit = "illuminance", "illuminance", "lux"
	case zwave.SensorTypePower:
		attribute, measurement, unit = "power", "power", "W"
	case zwave.SensorTypeHumidity:
		attribute, measurement, unit = "humidity", "humidity", "%"
	default:
		m.logger.Debug("unhandled sensor type", "sensor_type", rep.SensorType, "value", rep.Value)
		return
	}

	m.emitter.Emit(state.Event{
		DeviceID:  m.id,
		Attribute: attribute,
		Value:     strconv.FormatFloat(rep.Value, 'f', -1, 64),
		Unit:      unit,
	}, false)
	if m.telemetry != nil {
		m.telemetry.WriteSensorReading(m.id, measurement, rep.Value, unit)
	}
}

func (m *Multisensor) handleBattery(rep *zwave.BatteryReport) {
	if rep.IsLow {
		m.logger.Warn("low battery warning")
	}
	m.emitter.Emit(state.Event{
		DeviceID:  m.id,
		Attribute: "battery",
		Value:     strconv.Itoa(int(rep.Level)),
		Unit:      "%",
	}, false)
	if m.telemetry != nil {
		m.telemetry.WriteSensorReading(m.id, "battery", float64(rep.Level), "%")
	}
}

func (m *Multisensor) handleNotification(rep *zwave.NotificationReport) {
	if rep.NotificationType != notificationHomeSecurity {
		m.logger.Debug("unhandled notification type", "type", rep.NotificationType, "event", rep.Event)
		return
	}
	switch rep.Event {
	case eventMotionDetected:
		m.emitter.Emit(state.Event{DeviceID: m.id, Attribute: "motion", Value: "active"}, false)
	case eventTampering:
		m.emitter.Emit(state.Event{DeviceID: m.id, Attribute: "tamper", Value: "detected"}, false)
	case eventStateIdle:
		// The idle event names the cleared condition in its first
		// parameter; no parameter clears everything.
		if len(rep.Parameters) == 0 || rep.Parameters[0] == eventMotionDetected {
			m.emitter.Emit(state.Event{DeviceID: m.id, Attribute: "motion", Value: "inactive"}, false)
		}
		if len(rep.Parameters) == 0 || rep.Parameters[0] == eventTampering {
			m.emitter.Emit(state.Event{DeviceID: m.id, Attribute: "tamper", Value: "clear"}, false)
		}
	default:
		m.logger.Debug("unhandled security event", "event", rep.Event)
	}
}

// handleWakeUp reasserts the wake-up interval, drains the queued
// commands while the device listens, then sends it back to sleep.
func (m *Multisensor) handleWakeUp(ctx context.Context) {
	m.mu.Lock()
	queue := m.queue
	m.queue = nil
	m.mu.Unlock()

	m.logger.Debug("device awake", "queued", len(queue))
	interval := &zwave.WakeUpIntervalSet{Seconds: m.wakeInterval, NodeID: controllerNodeID}
	if err := m.cmd.SendUnsupervised(ctx, m.id, interval, m.endpoint, true); err != nil {
		m.logger.Warn("wake-up interval set failed", "error", err)
	}
	for _, c := range queue {
		if err := m.cmd.SendUnsupervised(ctx, m.id, c, m.endpoint, true); err != nil {
			m.logger.Warn("queued command failed", "error", err)
		}
	}
	if err := m.cmd.SendUnsupervised(ctx, m.id, &zwave.WakeUpNoMoreInformation{}, m.endpoint, true); err != nil {
		m.logger.Warn("sleep command failed", "error", err)
	}
}
