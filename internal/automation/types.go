// Package automation evaluates threshold rules against sensor readings.
//
// A rule binds a room, a metric, a comparator, and a threshold to an
// actuator command: "when fruiting-room CO2 exceeds 1200 ppm, turn the
// exhaust fan on". Rules are evaluated against every reading as it is
// ingested, and on demand for a whole room via the API.
package automation

import (
	"encoding/json"
	"fmt"
	"time"
)

// Comparator is a rule's comparison operator.
type Comparator string

// Supported comparators. Equality uses a small epsilon because metric
// values come out of float sensor payloads.
const (
	CompGreater      Comparator = ">"
	CompLess         Comparator = "<"
	CompGreaterEqual Comparator = ">="
	CompLessEqual    Comparator = "<="
	CompEqual        Comparator = "="
)

// equalityEpsilon is the tolerance for the "=" comparator.
const equalityEpsilon = 0.01

// Compare applies the comparator to a metric value and a threshold.
func (c Comparator) Compare(value, threshold float64) (bool, error) {
	switch c {
	case CompGreater:
		return value > threshold, nil
	case CompLess:
		return value < threshold, nil
	case CompGreaterEqual:
		return value >= threshold, nil
	case CompLessEqual:
		return value <= threshold, nil
	case CompEqual:
		diff := value - threshold
		return diff < equalityEpsilon && diff > -equalityEpsilon, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidComparator, c)
	}
}

// Action is the command a rule issues when it fires.
type Action struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// Rule is one threshold automation rule.
type Rule struct {
	ID     string `json:"id"`
	RoomID string `json:"room_id"`
	Name   string `json:"name"`

	// Parameter names the metric to test, using the telemetry wire
	// vocabulary ("temperature", "co2", ...). Unit-suffixed storage
	// names are accepted too.
	Parameter  string     `json:"parameter"`
	Comparator Comparator `json:"comparator"`
	Threshold  float64    `json:"threshold"`

	// ActionDeviceID is the actuator that receives the action command.
	ActionDeviceID string `json:"action_device_id"`
	Action         Action `json:"action"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// actionJSON round-trips the action through the TEXT column.
func (r *Rule) actionJSON() (string, error) {
	data, err := json.Marshal(r.Action)
	if err != nil {
		return "", fmt.Errorf("marshalling action: %w", err)
	}
	return string(data), nil
}
