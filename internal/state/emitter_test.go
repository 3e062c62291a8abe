package state

import (
	"testing"
)

type recordingSink struct {
	events []Event
	err    error
}

func (s *recordingSink) Publish(e Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func TestEmitterSuppressesUnchanged(t *testing.T) {
	sink := &recordingSink{}
	em := NewEmitter(sink, nil)

	ev := Event{DeviceID: "gate", Attribute: "door", Value: "opening"}

	if !em.Emit(ev, false) {
		t.Fatal("first emission suppressed")
	}
	if em.Emit(ev, false) {
		t.Error("identical emission not suppressed")
	}
	if len(sink.events) != 1 {
		t.Fatalf("events = %d, want 1", len(sink.events))
	}

	ev.Value = "open"
	if !em.Emit(ev, false) {
		t.Error("changed emission suppressed")
	}
	if len(sink.events) != 2 {
		t.Fatalf("events = %d, want 2", len(sink.events))
	}
}

func TestEmitterForce(t *testing.T) {
	sink := &recordingSink{}
	em := NewEmitter(sink, nil)

	ev := Event{DeviceID: "gate", Attribute: "door", Value: "closed"}
	em.Emit(ev, false)
	if !em.Emit(ev, true) {
		t.Error("forced emission suppressed")
	}
	if len(sink.events) != 2 {
		t.Fatalf("events = %d, want 2", len(sink.events))
	}
}

func TestEmitterKeysPerDeviceAttribute(t *testing.T) {
	sink := &recordingSink{}
	em := NewEmitter(sink, nil)

	em.Emit(Event{DeviceID: "gate", Attribute: "door", Value: "open"}, false)
	if !em.Emit(Event{DeviceID: "gate", Attribute: "contact", Value: "open"}, false) {
		t.Error("different attribute suppressed by door state")
	}
	if !em.Emit(Event{DeviceID: "shutter", Attribute: "door", Value: "open"}, false) {
		t.Error("different device suppressed by gate state")
	}
}

func TestEmitterReset(t *testing.T) {
	sink := &recordingSink{}
	em := NewEmitter(sink, nil)

	em.Emit(Event{DeviceID: "gate", Attribute: "door", Value: "open"}, false)
	em.Emit(Event{DeviceID: "gateway", Attribute: "door", Value: "open"}, false)
	em.Reset("gate")

	if !em.Emit(Event{DeviceID: "gate", Attribute: "door", Value: "open"}, false) {
		t.Error("emission suppressed after reset")
	}
	// A device whose ID shares a prefix keeps its suppression state.
	if em.Emit(Event{DeviceID: "gateway", Attribute: "door", Value: "open"}, false) {
		t.Error("prefix-sharing device lost suppression state")
	}
}
