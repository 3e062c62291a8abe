package bridge

import "errors"

var (
	// ErrUnknownDevice is returned when a command or frame names a
	// device the bridge does not manage.
	ErrUnknownDevice = errors.New("bridge: unknown device")

	// ErrNoDevices is returned when the device store holds no devices
	// at startup.
	ErrNoDevices = errors.New("bridge: no devices configured")

	// ErrUnknownProfile is returned when a device record carries a
	// profile no driver implements.
	ErrUnknownProfile = errors.New("bridge: unknown device profile")
)
