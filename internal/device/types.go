package device

import "time"

// Status is a device's liveness state.
type Status string

// Valid device statuses. A device is online while messages keep arriving
// and flips to offline when the liveness sweep finds it silent past the
// configured threshold.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Category distinguishes how a device participates in the system.
type Category string

// Device categories. Sensors report telemetry; actuators accept commands.
// Some hardware does both.
const (
	CategorySensor   Category = "sensor"
	CategoryActuator Category = "actuator"
	CategoryHybrid   Category = "hybrid"
)

// Device represents a sensor or actuator installed in a growing room.
// This matches the devices table in the initial schema migration, with
// FarmID resolved through the room join.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Location. FarmID is derived from the room and never stored on the
	// device row itself.
	RoomID string `json:"room_id"`
	FarmID string `json:"farm_id"`

	// Classification
	DeviceType *string  `json:"device_type,omitempty"`
	Category   Category `json:"category,omitempty"`

	// Liveness
	Status   Status     `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// Metadata
	FirmwareVersion *string `json:"firmware_version,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// DeepCopy creates an independent copy of the Device.
// Pointer fields reference immutable values (string, time.Time), so a
// fresh struct with re-pointed fields is sufficient for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	if d.DeviceType != nil {
		v := *d.DeviceType
		cpy.DeviceType = &v
	}
	if d.LastSeen != nil {
		v := *d.LastSeen
		cpy.LastSeen = &v
	}
	if d.FirmwareVersion != nil {
		v := *d.FirmwareVersion
		cpy.FirmwareVersion = &v
	}

	return &cpy
}

// IsOnline reports whether the device is currently marked online.
func (d *Device) IsOnline() bool {
	return d.Status == StatusOnline
}
