// Package device defines the persistent device record and its SQLite
// store. The store doubles as the supervision session counter
// persistence and the write-once cache for device identification
// metadata.
package device

import "time"

// Profile names the driver a device record binds to.
const (
	ProfileGate        = "gate"
	ProfileShutter     = "shutter"
	ProfileMultisensor = "multisensor"
)

// Device is one paired Z-Wave device managed by the bridge.
type Device struct {
	ID            string
	Name          string
	NodeID        byte
	Profile       string
	Endpoint      byte
	Supervised    bool
	ReportStopped bool

	// Identification metadata cached from device reports. Zero until
	// the device has been interviewed.
	ManufacturerID  uint16
	ProductTypeID   uint16
	ProductID       uint16
	FirmwareVersion string

	LastSessionID byte

	CreatedAt time.Time
	UpdatedAt time.Time
}
