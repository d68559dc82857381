// Package command issues actuator commands and tracks their lifecycle.
//
// A command is created as pending, becomes sent once the broker accepts
// the publish, and reaches a terminal acked or failed state when the
// device acknowledges it. Transitions are monotonic: a terminal command
// never changes again, and an ack for a command that was never sent is
// rejected.
package command

import (
	"encoding/json"
	"time"
)

// Status is a command's lifecycle state.
type Status string

// Command lifecycle states.
const (
	// StatusPending: recorded but not yet accepted by the broker. A
	// failed publish leaves the command here for later retry.
	StatusPending Status = "pending"

	// StatusSent: the broker accepted the publish.
	StatusSent Status = "sent"

	// StatusAcked: the device confirmed execution. Terminal.
	StatusAcked Status = "acked"

	// StatusFailed: the device reported failure. Terminal.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusAcked || s == StatusFailed
}

// Command is one actuator instruction and its delivery state.
type Command struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`
	RoomID   string `json:"room_id"`
	FarmID   string `json:"farm_id"`

	// Command is the instruction name, e.g. "set_humidifier".
	Command string `json:"command"`

	// Params are instruction arguments passed through to the device.
	Params map[string]any `json:"params,omitempty"`

	// IssuedBy identifies the originator: a user ID, or "rule:<rule-id>"
	// for automation-issued commands.
	IssuedBy string    `json:"issued_by,omitempty"`
	IssuedAt time.Time `json:"issued_at"`

	Status Status `json:"status"`

	// StatusMessage carries the device's failure detail, if any.
	StatusMessage *string `json:"status_message,omitempty"`
}

// wirePayload is what gets published on the device's command topic.
type wirePayload struct {
	CommandID string         `json:"command_id"`
	Command   string         `json:"command"`
	Params    map[string]any `json:"params,omitempty"`
}

// WirePayload serialises the command for publishing.
func (c *Command) WirePayload() ([]byte, error) {
	return json.Marshal(wirePayload{
		CommandID: c.ID,
		Command:   c.Command,
		Params:    c.Params,
	})
}

// AckPayload is what devices publish on their ack topic. Status payloads
// that carry a command_id are treated the same way. Status may be
// omitted on success; failure detail arrives as message or error
// depending on the firmware build.
type AckPayload struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Detail returns the ack's human-readable text, preferring message
// over error.
func (a *AckPayload) Detail() string {
	if a.Message != "" {
		return a.Message
	}
	return a.Error
}
