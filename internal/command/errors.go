package command

import "errors"

// Sentinel errors for command operations.
// Use errors.Is() to check for these conditions.
var (
	// ErrCommandNotFound indicates the referenced command does not exist.
	ErrCommandNotFound = errors.New("command not found")

	// ErrPublishFailed indicates the broker did not accept the command.
	// The command stays pending.
	ErrPublishFailed = errors.New("command publish failed")

	// ErrInvalidTransition indicates an ack arrived for a command not in
	// the sent state.
	ErrInvalidTransition = errors.New("invalid command status transition")

	// ErrMalformedAck indicates an ack payload that could not be decoded
	// or carries no command_id.
	ErrMalformedAck = errors.New("malformed command ack")
)
