// Package notification records operational events for farm staff.
//
// Notifications are emitted by the core itself (device errors, command
// failures, rules firing) and read back over the API. Emission is
// strictly best-effort: a failure to record a notification must never
// fail the operation that triggered it.
package notification

import "time"

// Level classifies notification severity.
type Level string

// Notification levels, from most to least urgent.
const (
	LevelCritical Level = "critical"
	LevelWarning  Level = "warning"
	LevelInfo     Level = "info"
)

// Notification is one recorded event. Farm, room, and device references
// are optional; an event keeps its notification even if the referenced
// entity is later deleted.
type Notification struct {
	ID       string  `json:"id"`
	FarmID   *string `json:"farm_id,omitempty"`
	RoomID   *string `json:"room_id,omitempty"`
	DeviceID *string `json:"device_id,omitempty"`

	Level   Level  `json:"level"`
	Message string `json:"message"`

	CreatedAt time.Time  `json:"created_at"`
	AckedAt   *time.Time `json:"acked_at,omitempty"`
	AckedBy   *string    `json:"acked_by,omitempty"`
}

// Acked reports whether the notification has been acknowledged.
func (n *Notification) Acked() bool {
	return n.AckedAt != nil
}
