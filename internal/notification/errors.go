package notification

import "errors"

// Sentinel errors for notification operations.
var (
	// ErrNotificationNotFound indicates the requested notification does not exist.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrAlreadyAcked indicates the notification was already acknowledged.
	ErrAlreadyAcked = errors.New("notification already acknowledged")

	// ErrInvalidLevel indicates a level outside critical/warning/info.
	ErrInvalidLevel = errors.New("invalid notification level")
)
