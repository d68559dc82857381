package mqtt

import "fmt"

// Topic segment constants for the farm/room/device hierarchy.
const (
	segFarm   = "farm"
	segRoom   = "room"
	segDevice = "device"

	// KindTelemetry is the suffix for device-to-cloud sensor readings.
	KindTelemetry = "telemetry"

	// KindStatus is the suffix for device status announcements.
	KindStatus = "status"

	// KindCommand is the suffix for cloud-to-device commands. Some firmware
	// variants also report acknowledgments on this kind.
	KindCommand = "command"

	// KindAck is the dedicated suffix for command acknowledgments.
	KindAck = "ack"
)

// Topics provides builders for Mycelia MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.DeviceCommand("f1", "r1", "d1")
//	// Returns: "farm/f1/room/r1/device/d1/command"
type Topics struct{}

// DeviceTelemetry returns the telemetry topic for a device.
//
// Example: farm/f1/room/r1/device/d1/telemetry
func (Topics) DeviceTelemetry(farmID, roomID, deviceID string) string {
	return deviceTopic(farmID, roomID, deviceID, KindTelemetry)
}

// DeviceStatus returns the status topic for a device.
//
// Example: farm/f1/room/r1/device/d1/status
func (Topics) DeviceStatus(farmID, roomID, deviceID string) string {
	return deviceTopic(farmID, roomID, deviceID, KindStatus)
}

// DeviceCommand returns the outbound command topic for a device.
//
// Example: farm/f1/room/r1/device/d1/command
func (Topics) DeviceCommand(farmID, roomID, deviceID string) string {
	return deviceTopic(farmID, roomID, deviceID, KindCommand)
}

// DeviceAck returns the command acknowledgment topic for a device.
//
// Example: farm/f1/room/r1/device/d1/ack
func (Topics) DeviceAck(farmID, roomID, deviceID string) string {
	return deviceTopic(farmID, roomID, deviceID, KindAck)
}

// AllTelemetry returns a pattern matching telemetry from every device.
//
// Pattern: farm/+/room/+/device/+/telemetry
func (Topics) AllTelemetry() string {
	return deviceTopic("+", "+", "+", KindTelemetry)
}

// AllStatus returns a pattern matching status messages from every device.
//
// Pattern: farm/+/room/+/device/+/status
func (Topics) AllStatus() string {
	return deviceTopic("+", "+", "+", KindStatus)
}

// AllAcks returns a pattern matching command acknowledgments from every device.
//
// Pattern: farm/+/room/+/device/+/ack
func (Topics) AllAcks() string {
	return deviceTopic("+", "+", "+", KindAck)
}

// SystemStatus returns the topic the core announces its own liveness on,
// including the Last Will published by the broker on unexpected disconnect.
func (Topics) SystemStatus() string {
	return "mycelia/system/status"
}

func deviceTopic(farmID, roomID, deviceID, kind string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s/%s",
		segFarm, farmID, segRoom, roomID, segDevice, deviceID, kind)
}
