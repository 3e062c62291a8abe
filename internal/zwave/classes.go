package zwave

// Command class identifiers.
const (
	ClassBattery              byte = 0x80
	ClassConfiguration        byte = 0x70
	ClassManufacturerSpecific byte = 0x72
	ClassMeter                byte = 0x32
	ClassMultiChannel         byte = 0x60
	ClassNotification         byte = 0x71
	ClassSecurity2            byte = 0x9F
	ClassSensorMultilevel     byte = 0x31
	ClassSupervision          byte = 0x6C
	ClassSwitchMultilevel     byte = 0x26
	ClassVersion              byte = 0x86
	ClassWakeUp               byte = 0x84
)

// Command identifiers, grouped by class.
const (
	BatteryCmdGet    byte = 0x02
	BatteryCmdReport byte = 0x03

	ConfigurationCmdSet    byte = 0x04
	ConfigurationCmdGet    byte = 0x05
	ConfigurationCmdReport byte = 0x06

	ManufacturerSpecificCmdGet    byte = 0x04
	ManufacturerSpecificCmdReport byte = 0x05

	MeterCmdGet    byte = 0x01
	MeterCmdReport byte = 0x02

	MultiChannelCmdEncapID byte = 0x0D

	NotificationCmdReport byte = 0x05

	Security2CmdMessageEncapsulation byte = 0x03

	SensorMultilevelCmdGet    byte = 0x04
	SensorMultilevelCmdReport byte = 0x05

	SupervisionCmdGet    byte = 0x01
	SupervisionCmdReport byte = 0x02

	SwitchMultilevelCmdSet              byte = 0x01
	SwitchMultilevelCmdGet              byte = 0x02
	SwitchMultilevelCmdReport           byte = 0x03
	SwitchMultilevelCmdStartLevelChange byte = 0x04
	SwitchMultilevelCmdStopLevelChange  byte = 0x05

	VersionCmdGet    byte = 0x11
	VersionCmdReport byte = 0x12

	WakeUpCmdIntervalSet        byte = 0x04
	WakeUpCmdNotification       byte = 0x07
	WakeUpCmdNoMoreInformation  byte = 0x08
)

// Supervision session status values carried by a Supervision Report.
const (
	SupervisionStatusNoSupport byte = 0x00
	SupervisionStatusWorking   byte = 0x01
	SupervisionStatusFail      byte = 0x02
	SupervisionStatusSuccess   byte = 0xFF
)

// Multilevel switch level domain. 0 is fully off/closed, 99 fully
// on/open. 0xFE reports that the device is in transition, 0xFF requests
// a restore of the previous level.
const (
	LevelMin     byte = 0
	LevelMax     byte = 99
	LevelUnknown byte = 0xFE
	LevelRestore byte = 0xFF
)

// Multilevel sensor types used by the supported device profiles.
const (
	SensorTypeTemperature byte = 0x01
	SensorTypeIlluminance byte = 0x03
	SensorTypePower       byte = 0x04
	SensorTypeHumidity    byte = 0x05
)

// VersionTable records the negotiated command class version per device.
// Decoding consults it where the wire format grew fields across
// versions. A missing entry is treated as version 1.
type VersionTable map[byte]byte

// Get returns the recorded version for a class, defaulting to 1.
func (vt VersionTable) Get(class byte) byte {
	if vt == nil {
		return 1
	}
	if v, ok := vt[class]; ok && v > 0 {
		return v
	}
	return 1
}
