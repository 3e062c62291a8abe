package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/device"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/drivers"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/config"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/logging"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/mqtt"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/radio"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/state"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/supervision"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/zwave"
)

// commandTimeout bounds the execution of one capability command.
const commandTimeout = 5 * time.Second

// MQTTClient is the broker surface the bridge needs. *mqtt.Client
// satisfies it; tests substitute a recorder.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// DeviceStore is the persistence surface the bridge needs.
// *device.Store satisfies it.
type DeviceStore interface {
	supervision.CounterStore
	List(ctx context.Context) ([]*device.Device, error)
	SaveMetadata(ctx context.Context, deviceID string, manufacturerID, productTypeID, productID uint16) error
	SaveFirmwareVersion(ctx context.Context, deviceID, version string) error
}

// Options carries the bridge's collaborators.
type Options struct {
	Config *config.Config
	MQTT   MQTTClient
	Radio  radio.Connector
	Store  DeviceStore
	Logger *logging.Logger

	// Telemetry is optional. Nil disables time-series writes.
	Telemetry drivers.TelemetryWriter

	// Version is the build version reported in health messages.
	Version string
}

type nodeKey struct {
	node     byte
	endpoint byte
}

type managedDevice struct {
	record *device.Device
	driver drivers.Driver
}

// Bridge routes capability commands from MQTT to Z-Wave devices and
// inbound radio frames back out as state, ack and telemetry messages.
//
// All methods are safe for concurrent use.
type Bridge struct {
	cfg    *config.Config
	mqtt   MQTTClient
	radio  radio.Connector
	store  DeviceStore
	sup    *supervision.Manager
	health *HealthReporter
	logger *logging.Logger
	topics mqtt.Topics

	devices map[string]*managedDevice
	byNode  map[nodeKey]*managedDevice

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
}

// New builds a bridge from its collaborators and the configured
// devices. The device store must already be seeded.
func New(ctx context.Context, opts Options) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bridge: config is required")
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("bridge: MQTT client is required")
	}
	if opts.Radio == nil {
		return nil, fmt.Errorf("bridge: radio connector is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bridge: device store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	records, err := opts.Store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("bridge: load devices: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoDevices
	}

	bctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		cfg:       opts.Config,
		mqtt:      opts.MQTT,
		radio:     opts.Radio,
		store:     opts.Store,
		logger:    logger.With("component", "bridge"),
		devices:   make(map[string]*managedDevice, len(records)),
		byNode:    make(map[nodeKey]*managedDevice, len(records)),
		ctx:       bctx,
		ctxCancel: cancel,
	}

	b.sup = supervision.NewManager(supervision.Config{
		Retries:    opts.Config.Supervision.Retries,
		BaseDelay:  opts.Config.Supervision.GetBaseDelay(),
		RetryDelay: opts.Config.Supervision.GetRetryDelay(),
		Margin:     opts.Config.Supervision.GetMargin(),
	}, &nodeSender{bridge: b}, opts.Store, nil, logger)

	emitter := state.NewEmitter(state.SinkFunc(b.publishState), logger)

	for _, rec := range records {
		drv, err := buildDriver(rec, b.sup, emitter, opts.Telemetry, logger)
		if err != nil {
			b.sup.Close()
			cancel()
			return nil, err
		}
		md := &managedDevice{record: rec, driver: drv}
		b.devices[rec.ID] = md
		b.byNode[nodeKey{node: rec.NodeID, endpoint: rec.Endpoint}] = md
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.Bridge.ID,
		Version:   opts.Version,
		Address:   opts.Config.Radio.Connection,
		Interval:  opts.Config.GetHealthInterval(),
		Publisher: opts.MQTT,
		Radio:     opts.Radio,
	})
	b.health.SetDeviceCount(len(b.devices))

	return b, nil
}

// buildDriver selects the driver implementation for a device profile.
func buildDriver(rec *device.Device, cmd drivers.Commander, emitter *state.Emitter, telemetry drivers.TelemetryWriter, logger *logging.Logger) (drivers.Driver, error) {
	switch rec.Profile {
	case device.ProfileGate:
		return drivers.NewGate(rec, cmd, emitter, logger), nil
	case device.ProfileShutter:
		return drivers.NewShutter(rec, cmd, emitter, telemetry, logger), nil
	case device.ProfileMultisensor:
		return drivers.NewMultisensor(rec, cmd, emitter, telemetry, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q (device %s)", ErrUnknownProfile, rec.Profile, rec.ID)
	}
}

// Start subscribes to the command topics, installs the frame handler
// and begins health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	b.radio.SetOnFrame(b.handleFrame)

	topic := b.topics.CommandWildcard()
	if err := b.mqtt.Subscribe(topic, 1, b.handleCommandMessage); err != nil {
		return fmt.Errorf("bridge: subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", topic)

	b.health.Start(ctx)

	b.logger.Info("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"devices", len(b.devices),
	)
	return nil
}

// Stop cancels in-flight commands, settles the supervision manager and
// publishes a final stopping status. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.sup.Close()
		b.health.Stop()
		b.logger.Info("bridge stopped")
	})
}

// Devices returns the managed device records, for the API surface.
func (b *Bridge) Devices() []*device.Device {
	out := make([]*device.Device, 0, len(b.devices))
	for _, md := range b.devices {
		out = append(out, md.record)
	}
	return out
}

// Metrics summarizes bridge state for the API metrics endpoint.
type Metrics struct {
	Connected      bool        `json:"connected"`
	DevicesManaged int         `json:"devices_managed"`
	PendingTotal   int         `json:"pending_supervised"`
	Radio          radio.Stats `json:"radio"`
}

// GetMetrics returns a snapshot for the API metrics endpoint.
func (b *Bridge) GetMetrics() Metrics {
	pending := 0
	for id := range b.devices {
		pending += b.sup.PendingCount(id)
	}
	return Metrics{
		Connected:      b.radio.IsConnected(),
		DevicesManaged: len(b.devices),
		PendingTotal:   pending,
		Radio:          b.radio.Stats(),
	}
}

// nodeSender adapts the radio connector to the supervision manager's
// sender contract by resolving device IDs to node IDs.
type nodeSender struct {
	bridge *Bridge
}

func (s *nodeSender) Send(ctx context.Context, deviceID string, payload []byte) error {
	md, ok := s.bridge.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return s.bridge.radio.Send(ctx, md.record.NodeID, payload)
}

// publishState is the emitter sink: one attribute change becomes one
// retained state message.
func (b *Bridge) publishState(e state.Event) error {
	msg := NewStateMessage(e)
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.mqtt.Publish(b.topics.State(e.DeviceID), payload, 1, true)
}

// handleCommandMessage parses and executes one command from the
// command topic. The device ID is the final topic segment.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	deviceID := parts[len(parts)-1]
	if deviceID == "" {
		b.logger.Error("command on malformed topic", "topic", topic)
		return
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Error("failed to parse command", "topic", topic, "error", err)
		b.publishAck(NewAckError(CommandMessage{}, deviceID, ErrCodeInvalidCommand, "malformed command payload"))
		return
	}
	if cmd.ID == "" {
		cmd.ID = commandID(cmd)
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"device_id", deviceID,
		"action", cmd.Action,
	)

	md, ok := b.devices[deviceID]
	if !ok {
		b.publishAck(NewAckError(cmd, deviceID, ErrCodeUnknownDevice,
			fmt.Sprintf("device %s not configured", deviceID)))
		return
	}

	dc, err := parseCommand(cmd)
	if err != nil {
		b.publishAck(NewAckError(cmd, deviceID, ErrCodeInvalidParameters, err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := md.driver.Execute(ctx, dc); err != nil {
		b.publishAck(NewAckError(cmd, deviceID, ackCode(err), err.Error()))
		b.logger.Error("command execution failed",
			"command_id", cmd.ID,
			"device_id", deviceID,
			"error", err,
		)
		return
	}

	b.publishAck(NewAckMessage(cmd, deviceID))
}

// parseCommand converts a wire command into a driver command.
func parseCommand(cmd CommandMessage) (drivers.Command, error) {
	dc := drivers.Command{
		Action:    cmd.Action,
		Position:  cmd.Position,
		Direction: cmd.Direction,
		Value:     cmd.Value,
	}
	if cmd.Parameter < 0 || cmd.Parameter > 255 {
		return drivers.Command{}, fmt.Errorf("parameter %d out of range", cmd.Parameter)
	}
	dc.Parameter = byte(cmd.Parameter)

	if len(cmd.Parameters) > 0 {
		dc.Overrides = make(map[byte]int64, len(cmd.Parameters))
		for k, v := range cmd.Parameters {
			n, err := strconv.Atoi(k)
			if err != nil || n < 0 || n > 255 {
				return drivers.Command{}, fmt.Errorf("invalid parameter number %q", k)
			}
			dc.Overrides[byte(n)] = v
		}
	}
	return dc, nil
}

// ackCode maps a driver error to an acknowledgement error code.
func ackCode(err error) string {
	switch {
	case isOneOf(err, drivers.ErrUnknownAction):
		return ErrCodeInvalidCommand
	case isOneOf(err, drivers.ErrUnknownParameter, drivers.ErrValueOutOfRange, drivers.ErrInvalidDirection):
		return ErrCodeInvalidParameters
	case isOneOf(err, radio.ErrNotConnected, radio.ErrSendFailed, radio.ErrConnectionFailed):
		return ErrCodeRadioUnavailable
	default:
		return ErrCodeBridgeError
	}
}

func isOneOf(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("failed to marshal ack", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Ack(ack.DeviceID), payload, 1, false); err != nil {
		b.logger.Error("failed to publish ack", "error", err)
	}
}

// handleFrame routes one inbound node frame: decode, unwrap the
// envelopes, settle supervision sessions, cache identification
// metadata and hand the rest to the device driver.
func (b *Bridge) handleFrame(frame radio.Frame) {
	root, ok := b.byNode[nodeKey{node: frame.NodeID, endpoint: 0}]
	if !ok {
		b.logger.Debug("frame from unmanaged node", "node_id", frame.NodeID)
		return
	}

	cmd, err := zwave.Decode(frame.Payload, root.driver.Versions())
	if err != nil {
		b.logger.Warn("failed to decode frame",
			"node_id", frame.NodeID,
			"error", err,
		)
		return
	}

	inner, endpoint, err := zwave.Unwrap(cmd, root.driver.Versions())
	if err != nil {
		b.logger.Warn("failed to unwrap frame",
			"node_id", frame.NodeID,
			"error", err,
		)
		return
	}

	md := root
	if endpoint != 0 {
		ep, ok := b.byNode[nodeKey{node: frame.NodeID, endpoint: endpoint}]
		if !ok {
			b.logger.Debug("frame for unmanaged endpoint",
				"node_id", frame.NodeID,
				"endpoint", endpoint,
			)
			return
		}
		md = ep
	}

	// Dispatch on the radio worker so two reports from the same device
	// settle in arrival order.
	b.dispatch(md, inner, endpoint)
}

// dispatch handles one decoded inbound command for a managed device.
func (b *Bridge) dispatch(md *managedDevice, cmd zwave.Command, endpoint byte) {
	deviceID := md.record.ID

	switch c := cmd.(type) {
	case *zwave.SupervisionReport:
		if !b.sup.HandleReport(deviceID, c) {
			b.logger.Debug("supervision report for settled session",
				"device_id", deviceID,
				"session_id", c.SessionID,
			)
		}

	case *zwave.SupervisionGet:
		b.handleSupervisionGet(md, c, endpoint)

	case *zwave.ManufacturerSpecificReport:
		if err := b.store.SaveMetadata(b.ctx, deviceID, c.ManufacturerID, c.ProductTypeID, c.ProductID); err != nil {
			b.logger.Error("failed to save device metadata", "device_id", deviceID, "error", err)
		}

	case *zwave.VersionReport:
		if err := b.store.SaveFirmwareVersion(b.ctx, deviceID, c.FirmwareVersion); err != nil {
			b.logger.Error("failed to save firmware version", "device_id", deviceID, "error", err)
		}

	default:
		md.driver.HandleReport(b.ctx, cmd)
	}
}

// handleSupervisionGet acknowledges a device-initiated supervised
// report. The inner command is dispatched first, then a success report
// is returned regardless of its content so the device stops resending.
func (b *Bridge) handleSupervisionGet(md *managedDevice, get *zwave.SupervisionGet, endpoint byte) {
	if len(get.Encapsulated) > 0 {
		inner, err := zwave.Decode(get.Encapsulated, md.driver.Versions())
		if err != nil {
			b.logger.Warn("failed to decode supervised report",
				"device_id", md.record.ID,
				"session_id", get.SessionID,
				"error", err,
			)
		} else {
			b.dispatch(md, inner, endpoint)
		}
	}

	reply := &zwave.SupervisionReport{
		SessionID: get.SessionID,
		Status:    zwave.SupervisionStatusSuccess,
	}
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()
	if err := b.sup.SendUnsupervised(ctx, md.record.ID, reply, endpoint, true); err != nil {
		b.logger.Error("failed to acknowledge supervised report",
			"device_id", md.record.ID,
			"session_id", get.SessionID,
			"error", err,
		)
	}
}
