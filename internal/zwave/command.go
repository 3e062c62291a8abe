package zwave

import (
	"fmt"
	"math"
)

// Command is a decoded or to-be-encoded Z-Wave application command.
// Implementations form a closed set: every supported command class
// pairing has exactly one concrete type, and Decode is the single
// entry point mapping wire payloads onto them.
type Command interface {
	// CommandClassID returns the command class identifier byte.
	CommandClassID() byte
	// CommandID returns the command identifier byte within the class.
	CommandID() byte
	// MarshalBinary encodes the full payload including the class and
	// command identifier bytes.
	MarshalBinary() ([]byte, error)
}

// UnknownCommand carries a syntactically valid payload whose class or
// command is not part of the supported set. Handlers treat it as a
// no-op and log it.
type UnknownCommand struct {
	Class byte
	Cmd   byte
	Data  []byte
}

func (c *UnknownCommand) CommandClassID() byte { return c.Class }
func (c *UnknownCommand) CommandID() byte      { return c.Cmd }

func (c *UnknownCommand) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 2+len(c.Data))
	out = append(out, c.Class, c.Cmd)
	return append(out, c.Data...), nil
}

// SwitchMultilevelSet commands a target level. Duration is the device
// dimming duration encoding: 0 instant, 1-127 seconds, 0xFF factory
// default.
type SwitchMultilevelSet struct {
	Value    byte
	Duration byte
}

func (c *SwitchMultilevelSet) CommandClassID() byte { return ClassSwitchMultilevel }
func (c *SwitchMultilevelSet) CommandID() byte      { return SwitchMultilevelCmdSet }

func (c *SwitchMultilevelSet) MarshalBinary() ([]byte, error) {
	if c.Value > LevelMax && c.Value != LevelRestore {
		return nil, fmt.Errorf("%w: level %d out of range", ErrInvalidValue, c.Value)
	}
	return []byte{ClassSwitchMultilevel, SwitchMultilevelCmdSet, c.Value, c.Duration}, nil
}

// SwitchMultilevelGet requests the current level.
type SwitchMultilevelGet struct{}

func (c *SwitchMultilevelGet) CommandClassID() byte { return ClassSwitchMultilevel }
func (c *SwitchMultilevelGet) CommandID() byte      { return SwitchMultilevelCmdGet }

func (c *SwitchMultilevelGet) MarshalBinary() ([]byte, error) {
	return []byte{ClassSwitchMultilevel, SwitchMultilevelCmdGet}, nil
}

// SwitchMultilevelReport carries the current level and, from class
// version 4, the target level and remaining duration. HasTarget
// distinguishes version 4 reports from the short version 1 form.
type SwitchMultilevelReport struct {
	Value       byte
	TargetValue byte
	Duration    byte
	HasTarget   bool
}

func (c *SwitchMultilevelReport) CommandClassID() byte { return ClassSwitchMultilevel }
func (c *SwitchMultilevelReport) CommandID() byte      { return SwitchMultilevelCmdReport }

func (c *SwitchMultilevelReport) MarshalBinary() ([]byte, error) {
	if c.HasTarget {
		return []byte{ClassSwitchMultilevel, SwitchMultilevelCmdReport, c.Value, c.TargetValue, c.Duration}, nil
	}
	return []byte{ClassSwitchMultilevel, SwitchMultilevelCmdReport, c.Value}, nil
}

// SwitchMultilevelStartLevelChange starts a continuous level
// transition in one direction.
type SwitchMultilevelStartLevelChange struct {
	Up               bool
	IgnoreStartLevel bool
	StartLevel       byte
	Duration         byte
}

func (c *SwitchMultilevelStartLevelChange) CommandClassID() byte { return ClassSwitchMultilevel }
func (c *SwitchMultilevelStartLevelChange) CommandID() byte {
	return SwitchMultilevelCmdStartLevelChange
}

func (c *SwitchMultilevelStartLevelChange) MarshalBinary() ([]byte, error) {
	var props byte
	if !c.Up {
		props |= 0x40
	}
	if c.IgnoreStartLevel {
		props |= 0x20
	}
	return []byte{ClassSwitchMultilevel, SwitchMultilevelCmdStartLevelChange, props, c.StartLevel, c.Duration}, nil
}

// SwitchMultilevelStopLevelChange halts an in-progress transition.
type SwitchMultilevelStopLevelChange struct{}

func (c *SwitchMultilevelStopLevelChange) CommandClassID() byte { return ClassSwitchMultilevel }
func (c *SwitchMultilevelStopLevelChange) CommandID() byte {
	return SwitchMultilevelCmdStopLevelChange
}

func (c *SwitchMultilevelStopLevelChange) MarshalBinary() ([]byte, error) {
	return []byte{ClassSwitchMultilevel, SwitchMultilevelCmdStopLevelChange}, nil
}

// ConfigurationSet writes a device configuration parameter. Value is
// the raw wire value; scaling of application-facing values happens in
// the parameter descriptors, not here.
type ConfigurationSet struct {
	Parameter byte
	Size      byte
	Value     int64
}

func (c *ConfigurationSet) CommandClassID() byte { return ClassConfiguration }
func (c *ConfigurationSet) CommandID() byte      { return ConfigurationCmdSet }

func (c *ConfigurationSet) MarshalBinary() ([]byte, error) {
	value, err := encodeValue(c.Value, c.Size)
	if err != nil {
		return nil, fmt.Errorf("parameter %d: %w", c.Parameter, err)
	}
	out := []byte{ClassConfiguration, ConfigurationCmdSet, c.Parameter, c.Size & 0x07}
	return append(out, value...), nil
}

// ConfigurationGet requests a parameter's current value.
type ConfigurationGet struct {
	Parameter byte
}

func (c *ConfigurationGet) CommandClassID() byte { return ClassConfiguration }
func (c *ConfigurationGet) CommandID() byte      { return ConfigurationCmdGet }

func (c *ConfigurationGet) MarshalBinary() ([]byte, error) {
	return []byte{ClassConfiguration, ConfigurationCmdGet, c.Parameter}, nil
}

// ConfigurationReport carries a parameter's current signed wire value.
type ConfigurationReport struct {
	Parameter byte
	Size      byte
	Value     int64
}

func (c *ConfigurationReport) CommandClassID() byte { return ClassConfiguration }
func (c *ConfigurationReport) CommandID() byte      { return ConfigurationCmdReport }

func (c *ConfigurationReport) MarshalBinary() ([]byte, error) {
	value, err := encodeValue(c.Value, c.Size)
	if err != nil {
		return nil, fmt.Errorf("parameter %d: %w", c.Parameter, err)
	}
	out := []byte{ClassConfiguration, ConfigurationCmdReport, c.Parameter, c.Size & 0x07}
	return append(out, value...), nil
}

// SupervisionGet wraps a command in a supervised session. SessionID is
// a 6-bit rotating identifier. Encapsulated holds the inner command
// payload verbatim; on receive it is decoded separately so a malformed
// inner command does not poison session accounting.
type SupervisionGet struct {
	SessionID     byte
	StatusUpdates bool
	Encapsulated  []byte
}

func (c *SupervisionGet) CommandClassID() byte { return ClassSupervision }
func (c *SupervisionGet) CommandID() byte      { return SupervisionCmdGet }

func (c *SupervisionGet) MarshalBinary() ([]byte, error) {
	if c.SessionID > 0x3F {
		return nil, fmt.Errorf("%w: session id %d exceeds 6 bits", ErrInvalidValue, c.SessionID)
	}
	if len(c.Encapsulated) > 255 {
		return nil, fmt.Errorf("%w: encapsulated command too long", ErrInvalidValue)
	}
	props := c.SessionID
	if c.StatusUpdates {
		props |= 0x80
	}
	out := []byte{ClassSupervision, SupervisionCmdGet, props, byte(len(c.Encapsulated))}
	return append(out, c.Encapsulated...), nil
}

// SupervisionReport acknowledges a supervised session with its
// execution status.
type SupervisionReport struct {
	SessionID         byte
	MoreStatusUpdates bool
	Status            byte
	Duration          byte
}

func (c *SupervisionReport) CommandClassID() byte { return ClassSupervision }
func (c *SupervisionReport) CommandID() byte      { return SupervisionCmdReport }

func (c *SupervisionReport) MarshalBinary() ([]byte, error) {
	if c.SessionID > 0x3F {
		return nil, fmt.Errorf("%w: session id %d exceeds 6 bits", ErrInvalidValue, c.SessionID)
	}
	props := c.SessionID
	if c.MoreStatusUpdates {
		props |= 0x80
	}
	return []byte{ClassSupervision, SupervisionCmdReport, props, c.Status, c.Duration}, nil
}

// MultiChannelCmdEncap routes a command to or from a device endpoint.
type MultiChannelCmdEncap struct {
	SourceEndpoint byte
	DestEndpoint   byte
	Payload        []byte
}

func (c *MultiChannelCmdEncap) CommandClassID() byte { return ClassMultiChannel }
func (c *MultiChannelCmdEncap) CommandID() byte      { return MultiChannelCmdEncapID }

func (c *MultiChannelCmdEncap) MarshalBinary() ([]byte, error) {
	if len(c.Payload) < 2 {
		return nil, fmt.Errorf("%w: encapsulated payload too short", ErrInvalidValue)
	}
	out := []byte{ClassMultiChannel, MultiChannelCmdEncapID, c.SourceEndpoint & 0x7F, c.DestEndpoint & 0x7F}
	return append(out, c.Payload...), nil
}

// Security2MessageEncapsulation is the framing-only S2 envelope: a
// rotating sequence number, no extensions, and the inner payload in
// the clear. Cryptographic processing happens on the radio gateway.
type Security2MessageEncapsulation struct {
	Sequence byte
	Payload  []byte
}

func (c *Security2MessageEncapsulation) CommandClassID() byte { return ClassSecurity2 }
func (c *Security2MessageEncapsulation) CommandID() byte      { return Security2CmdMessageEncapsulation }

func (c *Security2MessageEncapsulation) MarshalBinary() ([]byte, error) {
	out := []byte{ClassSecurity2, Security2CmdMessageEncapsulation, c.Sequence, 0x00}
	return append(out, c.Payload...), nil
}

// BatteryGet requests the battery level.
type BatteryGet struct{}

func (c *BatteryGet) CommandClassID() byte { return ClassBattery }
func (c *BatteryGet) CommandID() byte      { return BatteryCmdGet }

func (c *BatteryGet) MarshalBinary() ([]byte, error) {
	return []byte{ClassBattery, BatteryCmdGet}, nil
}

// BatteryReport carries the battery level. The wire value 0xFF is a
// low-battery warning, surfaced as Level 1 with IsLow set.
type BatteryReport struct {
	Level byte
	IsLow bool
}

func (c *BatteryReport) CommandClassID() byte { return ClassBattery }
func (c *BatteryReport) CommandID() byte      { return BatteryCmdReport }

func (c *BatteryReport) MarshalBinary() ([]byte, error) {
	level := c.Level
	if c.IsLow {
		level = 0xFF
	}
	return []byte{ClassBattery, BatteryCmdReport, level}, nil
}

// SensorMultilevelGet requests a reading of one sensor type.
type SensorMultilevelGet struct {
	SensorType byte
}

func (c *SensorMultilevelGet) CommandClassID() byte { return ClassSensorMultilevel }
func (c *SensorMultilevelGet) CommandID() byte      { return SensorMultilevelCmdGet }

func (c *SensorMultilevelGet) MarshalBinary() ([]byte, error) {
	return []byte{ClassSensorMultilevel, SensorMultilevelCmdGet, c.SensorType, 0x00}, nil
}

// SensorMultilevelReport carries a scaled sensor reading. Value is the
// wire integer divided by 10^precision.
type SensorMultilevelReport struct {
	SensorType byte
	Scale      byte
	Precision  byte
	Value      float64
}

func (c *SensorMultilevelReport) CommandClassID() byte { return ClassSensorMultilevel }
func (c *SensorMultilevelReport) CommandID() byte      { return SensorMultilevelCmdReport }

func (c *SensorMultilevelReport) MarshalBinary() ([]byte, error) {
	raw := int64(math.Round(c.Value * math.Pow10(int(c.Precision))))
	value, err := encodeValue(raw, 4)
	if err != nil {
		return nil, err
	}
	props := c.Precision<<5 | c.Scale<<3 | 4
	out := []byte{ClassSensorMultilevel, SensorMultilevelCmdReport, c.SensorType, props}
	return append(out, value...), nil
}

// MeterGet requests a meter reading at the given scale.
type MeterGet struct {
	Scale byte
}

func (c *MeterGet) CommandClassID() byte { return ClassMeter }
func (c *MeterGet) CommandID() byte      { return MeterCmdGet }

func (c *MeterGet) MarshalBinary() ([]byte, error) {
	return []byte{ClassMeter, MeterCmdGet, c.Scale << 3}, nil
}

// MeterReport carries a scaled meter reading. For electric meters
// scale 0 is kWh and scale 2 is W.
type MeterReport struct {
	MeterType byte
	Scale     byte
	Precision byte
	Value     float64
}

func (c *MeterReport) CommandClassID() byte { return ClassMeter }
func (c *MeterReport) CommandID() byte      { return MeterCmdReport }

func (c *MeterReport) MarshalBinary() ([]byte, error) {
	raw := int64(math.Round(c.Value * math.Pow10(int(c.Precision))))
	value, err := encodeValue(raw, 4)
	if err != nil {
		return nil, err
	}
	props2 := c.Precision<<5 | c.Scale<<3 | 4
	out := []byte{ClassMeter, MeterCmdReport, c.MeterType & 0x1F, props2}
	return append(out, value...), nil
}

// NotificationReport carries a notification event, for example a
// tamper alarm or motion detection.
type NotificationReport struct {
	NotificationType byte
	Event            byte
	Parameters       []byte
}

func (c *NotificationReport) CommandClassID() byte { return ClassNotification }
func (c *NotificationReport) CommandID() byte      { return NotificationCmdReport }

func (c *NotificationReport) MarshalBinary() ([]byte, error) {
	params := c.Parameters
	if len(params) > 0x1F {
		return nil, fmt.Errorf("%w: notification parameters too long", ErrInvalidValue)
	}
	out := []byte{
		ClassNotification, NotificationCmdReport,
		0x00, 0x00, 0x00, 0xFF,
		c.NotificationType, c.Event,
		byte(len(params)),
	}
	return append(out, params...), nil
}

// ManufacturerSpecificGet requests device identification.
type ManufacturerSpecificGet struct{}

func (c *ManufacturerSpecificGet) CommandClassID() byte { return ClassManufacturerSpecific }
func (c *ManufacturerSpecificGet) CommandID() byte      { return ManufacturerSpecificCmdGet }

func (c *ManufacturerSpecificGet) MarshalBinary() ([]byte, error) {
	return []byte{ClassManufacturerSpecific, ManufacturerSpecificCmdGet}, nil
}

// ManufacturerSpecificReport identifies the device hardware.
type ManufacturerSpecificReport struct {
	ManufacturerID uint16
	ProductTypeID  uint16
	ProductID      uint16
}

func (c *ManufacturerSpecificReport) CommandClassID() byte { return ClassManufacturerSpecific }
func (c *ManufacturerSpecificReport) CommandID() byte      { return ManufacturerSpecificCmdReport }

func (c *ManufacturerSpecificReport) MarshalBinary() ([]byte, error) {
	return []byte{
		ClassManufacturerSpecific, ManufacturerSpecificCmdReport,
		byte(c.ManufacturerID >> 8), byte(c.ManufacturerID),
		byte(c.ProductTypeID >> 8), byte(c.ProductTypeID),
		byte(c.ProductID >> 8), byte(c.ProductID),
	}, nil
}

// VersionGet requests firmware version information.
type VersionGet struct{}

func (c *VersionGet) CommandClassID() byte { return ClassVersion }
func (c *VersionGet) CommandID() byte      { return VersionCmdGet }

func (c *VersionGet) MarshalBinary() ([]byte, error) {
	return []byte{ClassVersion, VersionCmdGet}, nil
}

// VersionReport carries library, protocol and firmware versions.
type VersionReport struct {
	LibraryType     byte
	ProtocolVersion string
	FirmwareVersion string
}

func (c *VersionReport) CommandClassID() byte { return ClassVersion }
func (c *VersionReport) CommandID() byte      { return VersionCmdReport }

func (c *VersionReport) MarshalBinary() ([]byte, error) {
	var pMaj, pMin, fMaj, fMin byte
	fmt.Sscanf(c.ProtocolVersion, "%d.%d", &pMaj, &pMin)
	fmt.Sscanf(c.FirmwareVersion, "%d.%d", &fMaj, &fMin)
	return []byte{ClassVersion, VersionCmdReport, c.LibraryType, pMaj, pMin, fMaj, fMin}, nil
}

// WakeUpNotification signals that a battery device is awake and
// listening for queued commands.
type WakeUpNotification struct{}

func (c *WakeUpNotification) CommandClassID() byte { return ClassWakeUp }
func (c *WakeUpNotification) CommandID() byte      { return WakeUpCmdNotification }

func (c *WakeUpNotification) MarshalBinary() ([]byte, error) {
	return []byte{ClassWakeUp, WakeUpCmdNotification}, nil
}

// WakeUpIntervalSet configures the wake-up interval and reporting node.
type WakeUpIntervalSet struct {
	Seconds uint32
	NodeID  byte
}

func (c *WakeUpIntervalSet) CommandClassID() byte { return ClassWakeUp }
func (c *WakeUpIntervalSet) CommandID() byte      { return WakeUpCmdIntervalSet }

func (c *WakeUpIntervalSet) MarshalBinary() ([]byte, error) {
	if c.Seconds > 0xFFFFFF {
		return nil, fmt.Errorf("%w: wake-up interval exceeds 24 bits", ErrInvalidValue)
	}
	return []byte{
		ClassWakeUp, WakeUpCmdIntervalSet,
		byte(c.Seconds >> 16), byte(c.Seconds >> 8), byte(c.Seconds),
		c.NodeID,
	}, nil
}

// WakeUpNoMoreInformation tells a battery device it may return to
// sleep.
type WakeUpNoMoreInformation struct{}

func (c *WakeUpNoMoreInformation) CommandClassID() byte { return ClassWakeUp }
func (c *WakeUpNoMoreInformation) CommandID() byte      { return WakeUpCmdNoMoreInformation }

func (c *WakeUpNoMoreInformation) MarshalBinary() ([]byte, error) {
	return []byte{ClassWakeUp, WakeUpCmdNoMoreInformation}, nil
}
