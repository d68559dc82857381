package farm

import "errors"

// Sentinel errors for farm and room lookups.
// Use errors.Is() to check for these conditions.
var (
	// ErrFarmNotFound indicates the requested farm does not exist.
	ErrFarmNotFound = errors.New("farm not found")

	// ErrRoomNotFound indicates the requested room does not exist.
	ErrRoomNotFound = errors.New("room not found")
)
