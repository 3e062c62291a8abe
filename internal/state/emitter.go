package state

import (
	"sync"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/logging"
)

// Event is one externally observable attribute change.
type Event struct {
	DeviceID  string
	Attribute string
	Value     string
	Unit      string
}

// Sink receives events that survive change suppression. The bridge
// wires this to MQTT state publishing.
type Sink interface {
	Publish(Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event) error

func (f SinkFunc) Publish(e Event) error { return f(e) }

// Emitter publishes attribute changes through a sink, suppressing
// events whose value equals the last emitted value for the same
// device/attribute pair. Suppressed updates are still logged at debug
// level so the inference trail stays observable.
type Emitter struct {
	sink   Sink
	logger *logging.Logger

	mu   sync.Mutex
	last map[string]string
}

// NewEmitter builds an emitter over a sink. A nil logger selects the
// process default.
func NewEmitter(sink Sink, logger *logging.Logger) *Emitter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Emitter{
		sink:   sink,
		logger: logger,
		last:   make(map[string]string),
	}
}

// Emit publishes the event unless its value matches the last emission
// for the same device and attribute. force bypasses suppression for
// callers that need a refresh of unchanged state. It reports whether
// the event was published.
func (e *Emitter) Emit(event Event, force bool) bool {
	key := event.DeviceID + "/" + event.Attribute

	e.mu.Lock()
	prev, seen := e.last[key]
	if seen && prev == event.Value && !force {
		e.mu.Unlock()
		e.logger.Debug("state unchanged, emission suppressed",
			"device_id", event.DeviceID,
			"attribute", event.Attribute,
			"value", event.Value,
		)
		return false
	}
	e.last[key] = event.Value
	e.mu.Unlock()

	if err := e.sink.Publish(event); err != nil {
		e.logger.Error("state event publish failed",
			"device_id", event.DeviceID,
			"attribute", event.Attribute,
			"error", err,
		)
		return false
	}
	e.logger.Debug("state event published",
		"device_id", event.DeviceID,
		"attribute", event.Attribute,
		"value", event.Value,
	)
	return true
}

// Reset clears the last-known value for a device so its next update
// always emits. Used when a device reconnects or is reconfigured.
func (e *Emitter) Reset(deviceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.last {
		if len(key) > len(deviceID) && key[:len(deviceID)] == deviceID && key[len(deviceID)] == '/' {
			delete(e.last, key)
		}
	}
}
