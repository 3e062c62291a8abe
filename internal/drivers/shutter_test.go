package drivers

import (
	"context"
	"testing"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/device"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/state"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/supervision"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/zwave"
)

type telemetryRecord struct {
	measurement string
	value       float64
	powerWatts  float64
	energyKWh   float64
}

type fakeTelemetry struct {
	sensor []telemetryRecord
	energy []telemetryRecord
}

func (f *fakeTelemetry) WriteSensorReading(_, measurement string, value float64, _ string) {
	f.sensor = append(f.sensor, telemetryRecord{measurement: measurement, value: value})
}

func (f *fakeTelemetry) WriteEnergyReading(_ string, powerWatts, energyKWh float64) {
	f.energy = append(f.energy, telemetryRecord{powerWatts: powerWatts, energyKWh: energyKWh})
}

func shutterFixture() (*Shutter, *fakeCommander, *eventSink, *fakeTelemetry) {
	cmd := &fakeCommander{}
	sink := &eventSink{}
	tel := &fakeTelemetry{}
	s := NewShutter(&device.Device{
		ID:         "shutter",
		NodeID:     7,
		Profile:    device.ProfileShutter,
		Supervised: true,
	}, cmd, state.NewEmitter(sink, nil), tel, nil)
	return s, cmd, sink, tel
}

func TestShutterOptimisticDirection(t *testing.T) {
	s, cmd, sink, _ := shutterFixture()
	ctx := context.Background()

	// Establish a known position first.
	s.HandleReport(ctx, &zwave.SwitchMultilevelReport{Value: 20, TargetValue: 20, HasTarget: true})
	if got, _ := sink.value("shade"); got != "partially-open" {
		t.Fatalf("shade = %q, want partially-open", got)
	}

	if err := s.Execute(ctx, Command{Action: ActionSetPosition, Position: 80}); err != nil {
		t.Fatal(err)
	}
	cmd.sent[0].cb(supervision.Result{Status: zwave.SupervisionStatusWorking})
	if got, _ := sink.value("shade"); got != "opening" {
		t.Errorf("shade = %q, want opening", got)
	}

	// Device report lands at the target.
	s.HandleReport(ctx, &zwave.SwitchMultilevelReport{Value: 80, TargetValue: 80, HasTarget: true})
	if got, _ := sink.value("shade"); got != "partially-open" {
		t.Errorf("shade = %q, want partially-open", got)
	}
	if got, _ := sink.value("position"); got != "80" {
		t.Errorf("position = %q, want 80", got)
	}
}

func TestShutterOptimisticSuccessUpdatesPosition(t *testing.T) {
	s, cmd, sink, _ := shutterFixture()
	ctx := context.Background()

	if err := s.Execute(ctx, Command{Action: ActionClose}); err != nil {
		t.Fatal(err)
	}
	cmd.sent[0].cb(supervision.Result{Status: zwave.SupervisionStatusSuccess})
	if got, _ := sink.value("shade"); got != "closed" {
		t.Errorf("shade = %q, want closed", got)
	}
	if got, _ := sink.value("position"); got != "0" {
		t.Errorf("position = %q, want 0", got)
	}
}

func TestShutterChangeSuppression(t *testing.T) {
	s, _, sink, _ := shutterFixture()
	ctx := context.Background()

	rep := &zwave.SwitchMultilevelReport{Value: 99, TargetValue: 99, HasTarget: true}
	s.HandleReport(ctx, rep)
	s.HandleReport(ctx, rep)

	var shadeEvents int
	for _, e := range sink.events {
		if e.Attribute == "shade" {
			shadeEvents++
		}
	}
	if shadeEvents != 1 {
		t.Errorf("shade events = %d, want 1", shadeEvents)
	}
}

func TestShutterUncalibratedReport(t *testing.T) {
	s, _, sink, _ := shutterFixture()

	s.HandleReport(context.Background(), &zwave.SwitchMultilevelReport{Value: 254, TargetValue: 254, HasTarget: true})
	if got, _ := sink.value("shade"); got != "unknown" {
		t.Errorf("shade = %q, want unknown", got)
	}
	if _, ok := sink.value("position"); ok {
		t.Error("out-of-range value emitted a position")
	}
}

func TestShutterMeterReports(t *testing.T) {
	s, _, sink, tel := shutterFixture()
	ctx := context.Background()

	s.HandleReport(ctx, &zwave.MeterReport{MeterType: 1, Scale: 2, Precision: 1, Value: 450.5})
	if got, _ := sink.value("power"); got != "450.5" {
		t.Errorf("power = %q, want 450.5", got)
	}
	if len(tel.energy) != 1 || tel.energy[0].powerWatts != 450.5 {
		t.Errorf("energy telemetry = %+v", tel.energy)
	}

	s.HandleReport(ctx, &zwave.MeterReport{MeterType: 1, Scale: 0, Precision: 2, Value: 12.34})
	if got, _ := sink.value("energy"); got != "12.34" {
		t.Errorf("energy = %q, want 12.34", got)
	}
	if len(tel.energy) != 2 || tel.energy[1].energyKWh != 12.34 {
		t.Errorf("energy telemetry = %+v", tel.energy)
	}
}

func TestShutterCalibrationFlow(t *testing.T) {
	s, cmd, sink, _ := shutterFixture()
	ctx := context.Background()

	if err := s.Execute(ctx, Command{Action: ActionCalibrate}); err != nil {
		t.Fatal(err)
	}
	if got, _ := sink.value("calibration"); got != "calibrating" {
		t.Errorf("calibration = %q, want calibrating", got)
	}
	set, ok := cmd.sent[0].cmd.(*zwave.ConfigurationSet)
	if !ok || set.Parameter != shutterCalibrationParameter || set.Value != 1 {
		t.Errorf("calibrate sent %#v", cmd.sent[0].cmd)
	}

	// First in-range position report completes the calibration.
	s.HandleReport(ctx, &zwave.SwitchMultilevelReport{Value: 50, TargetValue: 50, HasTarget: true})
	if got, _ := sink.value("calibration"); got != "calibrated" {
		t.Errorf("calibration = %q, want calibrated", got)
	}
}

func TestShutterRefresh(t *testing.T) {
	s, cmd, _, _ := shutterFixture()

	if err := s.Execute(context.Background(), Command{Action: ActionRefresh}); err != nil {
		t.Fatal(err)
	}
	if len(cmd.sent) != 2 {
		t.Fatalf("sent = %d commands, want 2", len(cmd.sent))
	}
	if _, ok := cmd.sent[0].cmd.(*zwave.SwitchMultilevelGet); !ok {
		t.Errorf("first command = %T", cmd.sent[0].cmd)
	}
	meterGet, ok := cmd.sent[1].cmd.(*zwave.MeterGet)
	if !ok || meterGet.Scale != 2 {
		t.Errorf("second command = %#v", cmd.sent[1].cmd)
	}
}
