package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/mqtt"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/radio"
)

// HealthPublisher is the broker surface the reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporter publishes bridge health to the health topic on an
// interval. Safe for concurrent use.
type HealthReporter struct {
	bridgeID  string
	version   string
	address   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	radio     radio.Connector
	topics    mqtt.Topics

	deviceCount   int
	deviceCountMu sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// HealthReporterConfig holds the reporter's collaborators.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Address is the radio gateway connection URL reported in the
	// connection block.
	Address string

	// Interval between reports. Defaults to 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher
	Radio     radio.Connector
}

// NewHealthReporter builds a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		address:   cfg.Address,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		radio:     cfg.Radio,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until the context is cancelled or
// Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop halts reporting and publishes a final stopping status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		// Best effort, the broker may already be gone.
		_ = h.publishStatus(HealthStopping, "")
	})
}

// SetDeviceCount updates the managed device count carried in reports.
func (h *HealthReporter) SetDeviceCount(count int) {
	h.deviceCountMu.Lock()
	h.deviceCount = count
	h.deviceCountMu.Unlock()
}

// PublishStarting publishes a starting status during initialization.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	_ = h.PublishNow()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			_ = h.PublishNow()
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.radio == nil || !h.radio.IsConnected() {
		return HealthDegraded, "radio gateway disconnected"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	h.deviceCountMu.RLock()
	deviceCount := h.deviceCount
	h.deviceCountMu.RUnlock()

	var stats radio.Stats
	if h.radio != nil {
		stats = h.radio.Stats()
	}

	msg := NewHealthMessage(h.bridgeID, h.version, h.address, status, stats, deviceCount, h.startTime)
	if reason != "" {
		msg.Reason = reason
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topics.Health(h.bridgeID), payload, 1, true)
}
