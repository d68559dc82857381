package device

import "errors"

// Sentinel errors for device operations.
// Use errors.Is() to check for these conditions.
var (
	// ErrDeviceNotFound indicates the requested device does not exist.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceExists indicates a device with the same ID already exists.
	ErrDeviceExists = errors.New("device already exists")

	// ErrInvalidStatus indicates a status value outside online/offline.
	ErrInvalidStatus = errors.New("invalid device status")
)
