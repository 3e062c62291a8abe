package zwave

import (
	"fmt"
	"math"
)

// Decode maps a raw application payload onto a concrete Command. The
// version table selects between short and extended report formats
// where a class changed shape across versions. A class or command
// outside the supported set decodes to *UnknownCommand with a nil
// error; only structural defects (truncation, bad lengths) return
// ErrInvalidPayload.
func Decode(payload []byte, vt VersionTable) (Command, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPayload, len(payload))
	}
	class, cmd, data := payload[0], payload[1], payload[2:]

	switch class {
	case ClassSwitchMultilevel:
		return decodeSwitchMultilevel(cmd, data, vt)
	case ClassConfiguration:
		return decodeConfiguration(cmd, data)
	case ClassSupervision:
		return decodeSupervision(cmd, data)
	case ClassMultiChannel:
		if cmd == MultiChannelCmdEncapID {
			return decodeMultiChannelEncap(data)
		}
	case ClassSecurity2:
		if cmd == Security2CmdMessageEncapsulation {
			return decodeSecurity2(data)
		}
	case ClassBattery:
		if cmd == BatteryCmdReport {
			return decodeBatteryReport(data)
		}
		if cmd == BatteryCmdGet {
			return &BatteryGet{}, nil
		}
	case ClassSensorMultilevel:
		if cmd == SensorMultilevelCmdReport {
			return decodeSensorMultilevelReport(data)
		}
	case ClassMeter:
		if cmd == MeterCmdReport {
			return decodeMeterReport(data)
		}
	case ClassNotification:
		if cmd == NotificationCmdReport {
			return decodeNotificationReport(data)
		}
	case ClassManufacturerSpecific:
		if cmd == ManufacturerSpecificCmdReport {
			return decodeManufacturerSpecificReport(data)
		}
	case ClassVersion:
		if cmd == VersionCmdReport {
			return decodeVersionReport(data)
		}
	case ClassWakeUp:
		if cmd == WakeUpCmdNotification {
			return &WakeUpNotification{}, nil
		}
	}

	return &UnknownCommand{Class: class, Cmd: cmd, Data: data}, nil
}

func decodeSwitchMultilevel(cmd byte, data []byte, vt VersionTable) (Command, error) {
	switch cmd {
	case SwitchMultilevelCmdSet:
		if len(data) < 1 {
			return nil, fmt.Errorf("%w: multilevel set truncated", ErrInvalidPayload)
		}
		set := &SwitchMultilevelSet{Value: data[0]}
		if len(data) >= 2 {
			set.Duration = data[1]
		}
		return set, nil
	case SwitchMultilevelCmdGet:
		return &SwitchMultilevelGet{}, nil
	case SwitchMultilevelCmdReport:
		if len(data) < 1 {
			return nil, fmt.Errorf("%w: multilevel report truncated", ErrInvalidPayload)
		}
		rep := &SwitchMultilevelReport{Value: data[0]}
		if vt.Get(ClassSwitchMultilevel) >= 4 && len(data) >= 3 {
			rep.TargetValue = data[1]
			rep.Duration = data[2]
			rep.HasTarget = true
		}
		return rep, nil
	case SwitchMultilevelCmdStartLevelChange:
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: start level change truncated", ErrInvalidPayload)
		}
		slc := &SwitchMultilevelStartLevelChange{
			Up:               data[0]&0x40 == 0,
			IgnoreStartLevel: data[0]&0x20 != 0,
			StartLevel:       data[1],
		}
		if len(data) >= 3 {
			slc.Duration = data[2]
		}
		return slc, nil
	case SwitchMultilevelCmdStopLevelChange:
		return &SwitchMultilevelStopLevelChange{}, nil
	}
	return &UnknownCommand{Class: ClassSwitchMultilevel, Cmd: cmd, Data: data}, nil
}

func decodeConfiguration(cmd byte, data []byte) (Command, error) {
	switch cmd {
	case ConfigurationCmdSet, ConfigurationCmdReport:
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: configuration payload truncated", ErrInvalidPayload)
		}
		size := data[1] & 0x07
		if size != 1 && size != 2 && size != 4 {
			return nil, fmt.Errorf("%w: configuration size %d", ErrInvalidPayload, size)
		}
		if len(data) < 2+int(size) {
			return nil, fmt.Errorf("%w: configuration value truncated", ErrInvalidPayload)
		}
		value := decodeValue(data[2 : 2+size])
		if cmd == ConfigurationCmdSet {
			return &ConfigurationSet{Parameter: data[0], Size: size, Value: value}, nil
		}
		return &ConfigurationReport{Parameter: data[0], Size: size, Value: value}, nil
	case ConfigurationCmdGet:
		if len(data) < 1 {
			return nil, fmt.Errorf("%w: configuration get truncated", ErrInvalidPayload)
		}
		return &ConfigurationGet{Parameter: data[0]}, nil
	}
	return &UnknownCommand{Class: ClassConfiguration, Cmd: cmd, Data: data}, nil
}

func decodeSupervision(cmd byte, data []byte) (Command, error) {
	switch cmd {
	case SupervisionCmdGet:
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: supervision get truncated", ErrInvalidPayload)
		}
		length := int(data[1])
		if len(data) < 2+length {
			return nil, fmt.Errorf("%w: supervision encapsulated command truncated", ErrInvalidPayload)
		}
		return &SupervisionGet{
			SessionID:     data[0] & 0x3F,
			StatusUpdates: data[0]&0x80 != 0,
			Encapsulated:  data[2 : 2+length],
		}, nil
	case SupervisionCmdReport:
		if len(data) < 3 {
			return nil, fmt.Errorf("%w: supervision report truncated", ErrInvalidPayload)
		}
		return &SupervisionReport{
			SessionID:         data[0] & 0x3F,
			MoreStatusUpdates: data[0]&0x80 != 0,
			Status:            data[1],
			Duration:          data[2],
		}, nil
	}
	return &UnknownCommand{Class: ClassSupervision, Cmd: cmd, Data: data}, nil
}

func decodeMultiChannelEncap(data []byte) (Command, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: multi channel encap truncated", ErrInvalidPayload)
	}
	return &MultiChannelCmdEncap{
		SourceEndpoint: data[0] & 0x7F,
		DestEndpoint:   data[1] & 0x7F,
		Payload:        data[2:],
	}, nil
}

func decodeSecurity2(data []byte) (Command, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: security encapsulation truncated", ErrInvalidPayload)
	}
	// Extension bit set means a variable-length extension block sits
	// between the header and the payload; the framing-only gateway
	// never produces one.
	if data[1]&0x01 != 0 {
		return nil, fmt.Errorf("%w: security extensions not supported", ErrInvalidPayload)
	}
	return &Security2MessageEncapsulation{Sequence: data[0], Payload: data[2:]}, nil
}

func decodeBatteryReport(data []byte) (Command, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: battery report truncated", ErrInvalidPayload)
	}
	rep := &BatteryReport{Level: data[0]}
	if data[0] == 0xFF {
		rep.Level = 1
		rep.IsLow = true
	}
	if rep.Level > 100 && !rep.IsLow {
		return nil, fmt.Errorf("%w: battery level %d", ErrInvalidPayload, data[0])
	}
	return rep, nil
}

func decodeSensorMultilevelReport(data []byte) (Command, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: sensor report truncated", ErrInvalidPayload)
	}
	precision := data[1] >> 5
	scale := data[1] >> 3 & 0x03
	size := data[1] & 0x07
	if size != 1 && size != 2 && size != 4 {
		return nil, fmt.Errorf("%w: sensor value size %d", ErrInvalidPayload, size)
	}
	if len(data) < 2+int(size) {
		return nil, fmt.Errorf("%w: sensor value truncated", ErrInvalidPayload)
	}
	raw := decodeValue(data[2 : 2+size])
	return &SensorMultilevelReport{
		SensorType: data[0],
		Scale:      scale,
		Precision:  precision,
		Value:      float64(raw) / math.Pow10(int(precision)),
	}, nil
}

func decodeMeterReport(data []byte) (Command, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: meter report truncated", ErrInvalidPayload)
	}
	precision := data[1] >> 5
	scale := data[1] >> 3 & 0x03
	size := data[1] & 0x07
	if size != 1 && size != 2 && size != 4 {
		return nil, fmt.Errorf("%w: meter value size %d", ErrInvalidPayload, size)
	}
	if len(data) < 2+int(size) {
		return nil, fmt.Errorf("%w: meter value truncated", ErrInvalidPayload)
	}
	// Meter accumulations are unsigned counters; a 4-byte energy total
	// past the signed midpoint must not decode negative.
	raw := decodeUnsignedValue(data[2 : 2+size])
	return &MeterReport{
		MeterType: data[0] & 0x1F,
		Scale:     scale,
		Precision: precision,
		Value:     float64(raw) / math.Pow10(int(precision)),
	}, nil
}

func decodeNotificationReport(data []byte) (Command, error) {
	// Version 5 layout: v1 alarm type, v1 level, reserved, status,
	// type, event, properties, optional event parameters.
	if len(data) < 6 {
		return nil, fmt.Errorf("%w: notification report truncated", ErrInvalidPayload)
	}
	rep := &NotificationReport{NotificationType: data[4], Event: data[5]}
	if len(data) >= 7 {
		paramLen := int(data[6] & 0x1F)
		if len(data) < 7+paramLen {
			return nil, fmt.Errorf("%w: notification parameters truncated", ErrInvalidPayload)
		}
		rep.Parameters = data[7 : 7+paramLen]
	}
	return rep, nil
}

func decodeManufacturerSpecificReport(data []byte) (Command, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("%w: manufacturer report truncated", ErrInvalidPayload)
	}
	return &ManufacturerSpecificReport{
		ManufacturerID: uint16(data[0])<<8 | uint16(data[1]),
		ProductTypeID:  uint16(data[2])<<8 | uint16(data[3]),
		ProductID:      uint16(data[4])<<8 | uint16(data[5]),
	}, nil
}

func decodeVersionReport(data []byte) (Command, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: version report truncated", ErrInvalidPayload)
	}
	return &VersionReport{
		LibraryType:     data[0],
		ProtocolVersion: fmt.Sprintf("%d.%d", data[1], data[2]),
		FirmwareVersion: fmt.Sprintf("%d.%d", data[3], data[4]),
	}, nil
}
