package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/device"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/config"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/mqtt"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/radio"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/zwave"
)

type publication struct {
	topic    string
	payload  []byte
	retained bool
}

type fakeMQTT struct {
	mu        sync.Mutex
	pubs      []publication
	subs      map[string]mqtt.MessageHandler
	connected bool
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{subs: make(map[string]mqtt.MessageHandler), connected: true}
}

func (f *fakeMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, publication{topic: topic, payload: append([]byte(nil), payload...), retained: retained})
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[topic] = handler
	return nil
}

func (f *fakeMQTT) IsConnected() bool { return f.connected }

// published returns all publications on topics containing the fragment.
func (f *fakeMQTT) published(fragment string) []publication {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publication
	for _, p := range f.pubs {
		if strings.Contains(p.topic, fragment) {
			out = append(out, p)
		}
	}
	return out
}

type sentFrame struct {
	nodeID  byte
	payload []byte
}

type fakeRadio struct {
	mu        sync.Mutex
	sent      []sentFrame
	onFrame   func(radio.Frame)
	connected bool
	sendErr   error
}

func newFakeRadio() *fakeRadio { return &fakeRadio{connected: true} }

func (f *fakeRadio) Send(_ context.Context, nodeID byte, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentFrame{nodeID: nodeID, payload: append([]byte(nil), payload...)})
	return nil
}

func (f *fakeRadio) SetOnFrame(cb func(radio.Frame)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFrame = cb
}

func (f *fakeRadio) IsConnected() bool { return f.connected }

func (f *fakeRadio) Stats() radio.Stats { return radio.Stats{Connected: f.connected} }

func (f *fakeRadio) Close() error { return nil }

func (f *fakeRadio) frames() []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentFrame(nil), f.sent...)
}

// inject delivers one inbound frame through the registered handler.
func (f *fakeRadio) inject(t *testing.T, nodeID byte, cmd zwave.Command) {
	t.Helper()
	payload, err := cmd.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal inbound command: %v", err)
	}
	f.mu.Lock()
	cb := f.onFrame
	f.mu.Unlock()
	if cb == nil {
		t.Fatal("no frame handler registered")
	}
	cb(radio.Frame{NodeID: nodeID, Payload: payload})
}

type fakeStore struct {
	mu       sync.Mutex
	records  []*device.Device
	sessions map[string]byte
	metadata map[string][3]uint16
	firmware map[string]string
}

func newFakeStore(records ...*device.Device) *fakeStore {
	return &fakeStore{
		records:  records,
		sessions: make(map[string]byte),
		metadata: make(map[string][3]uint16),
		firmware: make(map[string]string),
	}
}

func (f *fakeStore) List(context.Context) ([]*device.Device, error) { return f.records, nil }

func (f *fakeStore) LastSessionID(_ context.Context, deviceID string) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.sessions[deviceID]; ok {
		return id, nil
	}
	return 63, nil
}

func (f *fakeStore) SaveSessionID(_ context.Context, deviceID string, id byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[deviceID] = id
	return nil
}

func (f *fakeStore) SaveMetadata(_ context.Context, deviceID string, man, ptype, pid uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadata[deviceID] = [3]uint16{man, ptype, pid}
	return nil
}

func (f *fakeStore) SaveFirmwareVersion(_ context.Context, deviceID, version string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.firmware[deviceID] = version
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Bridge: config.BridgeConfig{ID: "zwbridge-test", HealthInterval: 60},
		Supervision: config.SupervisionConfig{
			Retries:    2,
			BaseDelay:  1500,
			RetryDelay: 1500,
			Margin:     250,
		},
	}
}

func gateRecord() *device.Device {
	return &device.Device{
		ID:            "gate-front",
		Name:          "Front Gate",
		NodeID:        5,
		Profile:       device.ProfileGate,
		Supervised:    true,
		ReportStopped: false,
	}
}

func startBridge(t *testing.T, records ...*device.Device) (*Bridge, *fakeMQTT, *fakeRadio, *fakeStore) {
	t.Helper()
	broker := newFakeMQTT()
	gw := newFakeRadio()
	store := newFakeStore(records...)

	b, err := New(context.Background(), Options{
		Config:  testConfig(),
		MQTT:    broker,
		Radio:   gw,
		Store:   store,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(b.Stop)
	return b, broker, gw, store
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sendCommand(t *testing.T, broker *fakeMQTT, deviceID string, payload string) {
	t.Helper()
	broker.mu.Lock()
	handler := broker.subs[mqtt.Topics{}.CommandWildcard()]
	broker.mu.Unlock()
	if handler == nil {
		t.Fatal("bridge did not subscribe to the command wildcard")
	}
	handler(mqtt.Topics{}.Command(deviceID), []byte(payload))
}

func decodeAck(t *testing.T, p publication) AckMessage {
	t.Helper()
	var ack AckMessage
	if err := json.Unmarshal(p.payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	return ack
}

func TestNewRequiresDevices(t *testing.T) {
	_, err := New(context.Background(), Options{
		Config: testConfig(),
		MQTT:   newFakeMQTT(),
		Radio:  newFakeRadio(),
		Store:  newFakeStore(),
	})
	if !errors.Is(err, ErrNoDevices) {
		t.Fatalf("New() error = %v, want ErrNoDevices", err)
	}
}

func TestNewRejectsUnknownProfile(t *testing.T) {
	rec := gateRecord()
	rec.Profile = "toaster"
	_, err := New(context.Background(), Options{
		Config: testConfig(),
		MQTT:   newFakeMQTT(),
		Radio:  newFakeRadio(),
		Store:  newFakeStore(rec),
	})
	if !errors.Is(err, ErrUnknownProfile) {
		t.Fatalf("New() error = %v, want ErrUnknownProfile", err)
	}
}

func TestCommandSendsSupervisedFrame(t *testing.T) {
	_, broker, gw, _ := startBridge(t, gateRecord())

	sendCommand(t, broker, "gate-front", `{"id":"cmd-1","action":"open"}`)

	frames := gw.frames()
	if len(frames) != 1 {
		t.Fatalf("frames sent = %d, want 1", len(frames))
	}
	if frames[0].nodeID != 5 {
		t.Errorf("frame node = %d, want 5", frames[0].nodeID)
	}
	// Secure envelope outermost, supervision inside.
	if frames[0].payload[0] != zwave.ClassSecurity2 {
		t.Errorf("outer class = %#02x, want S2", frames[0].payload[0])
	}

	acks := broker.published("/ack/")
	if len(acks) != 1 {
		t.Fatalf("acks published = %d, want 1", len(acks))
	}
	ack := decodeAck(t, acks[0])
	if ack.Status != AckAccepted {
		t.Errorf("ack status = %q, want accepted", ack.Status)
	}
	if ack.CommandID != "cmd-1" {
		t.Errorf("ack command_id = %q, want cmd-1", ack.CommandID)
	}
	if ack.DeviceID != "gate-front" {
		t.Errorf("ack device_id = %q, want gate-front", ack.DeviceID)
	}
}

func TestCommandUnknownDevice(t *testing.T) {
	_, broker, gw, _ := startBridge(t, gateRecord())

	sendCommand(t, broker, "gate-back", `{"id":"cmd-2","action":"open"}`)

	if len(gw.frames()) != 0 {
		t.Fatal("command for unknown device reached the radio")
	}
	acks := broker.published("/ack/gate-back")
	if len(acks) != 1 {
		t.Fatalf("acks published = %d, want 1", len(acks))
	}
	ack := decodeAck(t, acks[0])
	if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != ErrCodeUnknownDevice {
		t.Errorf("ack = %+v, want failed/UNKNOWN_DEVICE", ack)
	}
}

func TestCommandMalformedPayload(t *testing.T) {
	_, broker, _, _ := startBridge(t, gateRecord())

	sendCommand(t, broker, "gate-front", `{not json`)

	acks := broker.published("/ack/gate-front")
	if len(acks) != 1 {
		t.Fatalf("acks published = %d, want 1", len(acks))
	}
	ack := decodeAck(t, acks[0])
	if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != ErrCodeInvalidCommand {
		t.Errorf("ack = %+v, want failed/INVALID_COMMAND", ack)
	}
}

func TestCommandUnknownActionAck(t *testing.T) {
	_, broker, _, _ := startBridge(t, gateRecord())

	sendCommand(t, broker, "gate-front", `{"id":"cmd-3","action":"levitate"}`)

	acks := broker.published("/ack/gate-front")
	if len(acks) != 1 {
		t.Fatalf("acks published = %d, want 1", len(acks))
	}
	ack := decodeAck(t, acks[0])
	if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != ErrCodeInvalidCommand {
		t.Errorf("ack = %+v, want failed/INVALID_COMMAND", ack)
	}
}

func TestInboundReportPublishesState(t *testing.T) {
	_, broker, gw, _ := startBridge(t, gateRecord())

	gw.inject(t, 5, &zwave.SwitchMultilevelReport{Value: 0, TargetValue: 0, HasTarget: true})

	waitFor(t, "door state publish", func() bool {
		return len(broker.published("/state/")) >= 2
	})

	var attrs = map[string]string{}
	for _, p := range broker.published("/state/") {
		var msg StateMessage
		if err := json.Unmarshal(p.payload, &msg); err != nil {
			t.Fatalf("unmarshal state: %v", err)
		}
		if !p.retained {
			t.Errorf("state publish on %s not retained", p.topic)
		}
		attrs[msg.Attribute] = msg.Value
	}
	if attrs["door"] != "closed" {
		t.Errorf("door state = %q, want closed", attrs["door"])
	}
	if attrs["contact"] != "closed" {
		t.Errorf("contact state = %q, want closed", attrs["contact"])
	}
}

func TestBackToBackReportsSettleInOrder(t *testing.T) {
	_, broker, gw, _ := startBridge(t, gateRecord())

	gw.inject(t, 5, &zwave.SwitchMultilevelReport{Value: 0, TargetValue: 0, HasTarget: true})
	gw.inject(t, 5, &zwave.SwitchMultilevelReport{Value: 99, TargetValue: 99, HasTarget: true})

	// Dispatch runs on the frame callback, so the retained state must
	// reflect the later report.
	var doors []string
	for _, p := range broker.published("/state/gate-front") {
		var msg StateMessage
		if err := json.Unmarshal(p.payload, &msg); err != nil {
			t.Fatalf("unmarshal state: %v", err)
		}
		if msg.Attribute == "door" {
			doors = append(doors, msg.Value)
		}
	}
	if len(doors) != 2 {
		t.Fatalf("door publishes = %d, want 2", len(doors))
	}
	if doors[0] != "closed" || doors[1] != "open" {
		t.Errorf("door sequence = %v, want [closed open]", doors)
	}
}

func TestSupervisionReportSettlesSession(t *testing.T) {
	_, broker, gw, _ := startBridge(t, gateRecord())

	sendCommand(t, broker, "gate-front", `{"id":"cmd-4","action":"open"}`)
	if len(gw.frames()) != 1 {
		t.Fatalf("command did not reach the radio")
	}

	// First allocated session ID follows the persisted counter.
	gw.inject(t, 5, &zwave.SupervisionReport{SessionID: 0, Status: zwave.SupervisionStatusSuccess})

	waitFor(t, "optimistic state publish", func() bool {
		for _, p := range broker.published("/state/gate-front") {
			var msg StateMessage
			if json.Unmarshal(p.payload, &msg) == nil && msg.Attribute == "door" && msg.Value == "open" {
				return true
			}
		}
		return false
	})
}

func TestDeviceInitiatedSupervisionAcknowledged(t *testing.T) {
	_, broker, gw, _ := startBridge(t, gateRecord())

	inner, err := (&zwave.SwitchMultilevelReport{Value: 99, TargetValue: 99, HasTarget: true}).MarshalBinary()
	if err != nil {
		t.Fatalf("marshal inner report: %v", err)
	}
	gw.inject(t, 5, &zwave.SupervisionGet{SessionID: 9, StatusUpdates: true, Encapsulated: inner})

	waitFor(t, "supervision acknowledgement", func() bool {
		return len(gw.frames()) >= 1
	})

	// Reply is S2-framed; the supervision report sits inside.
	frame := gw.frames()[0]
	dec, err := zwave.Decode(frame.payload, nil)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	replyCmd, _, err := zwave.Unwrap(dec, nil)
	if err != nil {
		t.Fatalf("unwrap reply: %v", err)
	}
	reply, ok := replyCmd.(*zwave.SupervisionReport)
	if !ok {
		t.Fatalf("reply = %T, want *SupervisionReport", replyCmd)
	}
	if reply.SessionID != 9 {
		t.Errorf("reply session = %d, want 9", reply.SessionID)
	}
	if reply.Status != zwave.SupervisionStatusSuccess {
		t.Errorf("reply status = %#02x, want success", reply.Status)
	}

	waitFor(t, "inner report state publish", func() bool {
		for _, p := range broker.published("/state/gate-front") {
			var msg StateMessage
			if json.Unmarshal(p.payload, &msg) == nil && msg.Attribute == "door" && msg.Value == "open" {
				return true
			}
		}
		return false
	})
}

func TestFrameFromUnmanagedNodeIgnored(t *testing.T) {
	_, broker, gw, _ := startBridge(t, gateRecord())

	gw.inject(t, 33, &zwave.SwitchMultilevelReport{Value: 0})

	time.Sleep(20 * time.Millisecond)
	if got := broker.published("/state/"); len(got) != 0 {
		t.Fatalf("unmanaged node produced %d state publishes", len(got))
	}
}

func TestMetadataReportPersisted(t *testing.T) {
	_, _, gw, store := startBridge(t, gateRecord())

	gw.inject(t, 5, &zwave.ManufacturerSpecificReport{
		ManufacturerID: 0x010F,
		ProductTypeID:  0x0303,
		ProductID:      0x1000,
	})

	waitFor(t, "metadata persistence", func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		_, ok := store.metadata["gate-front"]
		return ok
	})

	store.mu.Lock()
	got := store.metadata["gate-front"]
	store.mu.Unlock()
	if got != [3]uint16{0x010F, 0x0303, 0x1000} {
		t.Errorf("metadata = %v, want fingerprint values", got)
	}
}

func TestSessionIDPersistedBeforeSend(t *testing.T) {
	_, broker, _, store := startBridge(t, gateRecord())

	sendCommand(t, broker, "gate-front", `{"action":"open"}`)

	store.mu.Lock()
	id, ok := store.sessions["gate-front"]
	store.mu.Unlock()
	if !ok {
		t.Fatal("session ID was not persisted")
	}
	if id != 0 {
		t.Errorf("persisted session ID = %d, want 0", id)
	}
}

func TestGetMetricsSnapshot(t *testing.T) {
	b, broker, gw, _ := startBridge(t, gateRecord())

	sendCommand(t, broker, "gate-front", `{"action":"open"}`)
	if len(gw.frames()) != 1 {
		t.Fatal("command did not reach the radio")
	}

	m := b.GetMetrics()
	if !m.Connected {
		t.Error("metrics report disconnected radio")
	}
	if m.DevicesManaged != 1 {
		t.Errorf("devices managed = %d, want 1", m.DevicesManaged)
	}
	if m.PendingTotal != 1 {
		t.Errorf("pending supervised = %d, want 1", m.PendingTotal)
	}
}
