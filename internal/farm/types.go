// Package farm holds the ownership hierarchy: farms contain rooms, rooms
// contain devices. Farms and rooms are provisioned by the management
// backend; the core reads them to validate topic ownership and to scope
// queries and broadcasts.
package farm

import "time"

// Farm is a physical growing site.
type Farm struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  *string   `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Room is a growing room within a farm. Stage tracks the cultivation
// phase (e.g. "incubation", "fruiting") and is informational only.
type Room struct {
	ID        string    `json:"id"`
	FarmID    string    `json:"farm_id"`
	Name      string    `json:"name"`
	Stage     *string   `json:"stage,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
