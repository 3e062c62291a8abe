package zwave

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestDecode(t *testing.T) {
	v4 := VersionTable{ClassSwitchMultilevel: 4}

	tests := []struct {
		name    string
		payload []byte
		vt      VersionTable
		want    Command
	}{
		{
			name:    "multilevel report v1",
			payload: []byte{0x26, 0x03, 50},
			want:    &SwitchMultilevelReport{Value: 50},
		},
		{
			name:    "multilevel report v4 with target",
			payload: []byte{0x26, 0x03, 0xFE, 99, 15},
			vt:      v4,
			want:    &SwitchMultilevelReport{Value: 0xFE, TargetValue: 99, Duration: 15, HasTarget: true},
		},
		{
			name:    "multilevel report v4 payload decoded as v1",
			payload: []byte{0x26, 0x03, 50, 99, 15},
			want:    &SwitchMultilevelReport{Value: 50},
		},
		{
			name:    "configuration report negative",
			payload: []byte{0x70, 0x06, 3, 2, 0xFF, 0x9C},
			want:    &ConfigurationReport{Parameter: 3, Size: 2, Value: -100},
		},
		{
			name:    "supervision get",
			payload: []byte{0x6C, 0x01, 0x85, 4, 0x26, 0x01, 99, 0},
			want: &SupervisionGet{
				SessionID:     5,
				StatusUpdates: true,
				Encapsulated:  []byte{0x26, 0x01, 99, 0},
			},
		},
		{
			name:    "supervision report working",
			payload: []byte{0x6C, 0x02, 0x87, 0x01, 10},
			want: &SupervisionReport{
				SessionID:         7,
				MoreStatusUpdates: true,
				Status:            SupervisionStatusWorking,
				Duration:          10,
			},
		},
		{
			name:    "battery report",
			payload: []byte{0x80, 0x03, 85},
			want:    &BatteryReport{Level: 85},
		},
		{
			name:    "battery report low warning",
			payload: []byte{0x80, 0x03, 0xFF},
			want:    &BatteryReport{Level: 1, IsLow: true},
		},
		{
			name: "sensor report temperature with precision",
			// Precision 1, scale 0 celsius, size 2, value 21.5.
			payload: []byte{0x31, 0x05, 0x01, 0x22, 0x00, 0xD7},
			want:    &SensorMultilevelReport{SensorType: SensorTypeTemperature, Precision: 1, Value: 21.5},
		},
		{
			name: "sensor report negative temperature",
			payload: []byte{0x31, 0x05, 0x01, 0x22, 0xFF, 0xC0},
			want:    &SensorMultilevelReport{SensorType: SensorTypeTemperature, Precision: 1, Value: -6.4},
		},
		{
			name: "meter report power watts",
			// Electric meter, precision 1, scale 2, size 2, 450.5 W.
			payload: []byte{0x32, 0x02, 0x01, 0x32, 0x11, 0x99},
			want:    &MeterReport{MeterType: 1, Scale: 2, Precision: 1, Value: 450.5},
		},
		{
			name: "meter report energy past signed midpoint",
			// Precision 2, scale 0, size 4; the counter stays positive
			// with the top bit set.
			payload: []byte{0x32, 0x02, 0x21, 0x44, 0x80, 0x00, 0x00, 0x00},
			want:    &MeterReport{MeterType: 1, Precision: 2, Value: 21474836.48},
		},
		{
			name:    "notification report motion",
			payload: []byte{0x71, 0x05, 0x00, 0x00, 0x00, 0xFF, 0x07, 0x08, 0x00},
			want:    &NotificationReport{NotificationType: 0x07, Event: 0x08, Parameters: []byte{}},
		},
		{
			name:    "manufacturer specific report",
			payload: []byte{0x72, 0x05, 0x01, 0x0F, 0x06, 0x02, 0x00, 0x53},
			want: &ManufacturerSpecificReport{
				ManufacturerID: 0x010F,
				ProductTypeID:  0x0602,
				ProductID:      0x0053,
			},
		},
		{
			name:    "version report",
			payload: []byte{0x86, 0x12, 0x03, 6, 4, 25, 25},
			want: &VersionReport{
				LibraryType:     3,
				ProtocolVersion: "6.4",
				FirmwareVersion: "25.25",
			},
		},
		{
			name:    "wake up notification",
			payload: []byte{0x84, 0x07},
			want:    &WakeUpNotification{},
		},
		{
			name:    "unknown class passes through",
			payload: []byte{0x25, 0x03, 0xFF},
			want:    &UnknownCommand{Class: 0x25, Cmd: 0x03, Data: []byte{0xFF}},
		},
		{
			name:    "unknown command within known class",
			payload: []byte{0x26, 0x07, 0x01},
			want:    &UnknownCommand{Class: 0x26, Cmd: 0x07, Data: []byte{0x01}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.payload, tt.vt)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"class only", []byte{0x26}},
		{"multilevel report missing value", []byte{0x26, 0x03}},
		{"configuration report bad size", []byte{0x70, 0x06, 1, 3, 0, 0, 0}},
		{"configuration value short", []byte{0x70, 0x06, 1, 4, 0, 0}},
		{"supervision get length overrun", []byte{0x6C, 0x01, 5, 10, 0x26, 0x02}},
		{"supervision report short", []byte{0x6C, 0x02, 5, 0xFF}},
		{"sensor value truncated", []byte{0x31, 0x05, 0x01, 0x44, 0x00}},
		{"security with extension flag", []byte{0x9F, 0x03, 0x01, 0x01, 0x26, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.payload, nil); !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("Decode() error = %v, want ErrInvalidPayload", err)
			}
		})
	}
}

func TestEncapsulate(t *testing.T) {
	var enc Encapsulator

	t.Run("plain command", func(t *testing.T) {
		got, err := enc.Encapsulate(&SwitchMultilevelGet{}, 0, false)
		if err != nil {
			t.Fatalf("Encapsulate() error = %v", err)
		}
		if !bytes.Equal(got, []byte{0x26, 0x02}) {
			t.Errorf("Encapsulate() = % X", got)
		}
	})

	t.Run("endpoint then security", func(t *testing.T) {
		got, err := enc.Encapsulate(&SwitchMultilevelGet{}, 2, true)
		if err != nil {
			t.Fatalf("Encapsulate() error = %v", err)
		}
		want := []byte{0x9F, 0x03, got[2], 0x00, 0x60, 0x0D, 0, 2, 0x26, 0x02}
		if !bytes.Equal(got, want) {
			t.Errorf("Encapsulate() = % X, want % X", got, want)
		}
	})

	t.Run("sequence rotates", func(t *testing.T) {
		first, _ := enc.Encapsulate(&SwitchMultilevelGet{}, 0, true)
		second, _ := enc.Encapsulate(&SwitchMultilevelGet{}, 0, true)
		if first[2] == second[2] {
			t.Errorf("sequence did not advance: %d", first[2])
		}
	})
}

func TestUnwrap(t *testing.T) {
	inner := &SwitchMultilevelReport{Value: 50}
	payload, err := inner.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	mc := &MultiChannelCmdEncap{SourceEndpoint: 3, Payload: payload}
	mcPayload, err := mc.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	s2 := &Security2MessageEncapsulation{Sequence: 9, Payload: mcPayload}

	cmd, endpoint, err := Unwrap(s2, nil)
	if err != nil {
		t.Fatalf("Unwrap() error = %v", err)
	}
	if endpoint != 3 {
		t.Errorf("endpoint = %d, want 3", endpoint)
	}
	rep, ok := cmd.(*SwitchMultilevelReport)
	if !ok {
		t.Fatalf("Unwrap() returned %T", cmd)
	}
	if rep.Value != 50 {
		t.Errorf("value = %d, want 50", rep.Value)
	}
}
