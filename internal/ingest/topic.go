package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the message class derived from a topic's trailing segment.
type Kind string

// Message kinds. Both the "command" and "ack" trailing segments map to
// KindCommandAck: older firmware reports acknowledgments on the command
// channel it listens on.
const (
	KindTelemetry  Kind = "telemetry"
	KindStatus     Kind = "status"
	KindCommandAck Kind = "command_ack"
)

// Route is a parsed device topic.
type Route struct {
	FarmID   string
	RoomID   string
	DeviceID string
	Kind     Kind
}

// ErrMalformedTopic indicates a topic outside the
// farm/{farm}/room/{room}/device/{device}/{kind} scheme.
var ErrMalformedTopic = errors.New("malformed topic")

// ParseTopic parses a device topic into a Route.
//
// The scheme is exactly seven segments:
//
//	farm/{farmId}/room/{roomId}/device/{deviceId}/{kind}
//
// with non-empty IDs and a known trailing kind. Anything else is
// ErrMalformedTopic; the router drops such messages with a warning.
func ParseTopic(topic string) (Route, error) {
	segs := strings.Split(topic, "/")
	if len(segs) != 7 {
		return Route{}, fmt.Errorf("%w: %q has %d segments, want 7", ErrMalformedTopic, topic, len(segs))
	}
	if segs[0] != "farm" || segs[2] != "room" || segs[4] != "device" {
		return Route{}, fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
	}
	if segs[1] == "" || segs[3] == "" || segs[5] == "" {
		return Route{}, fmt.Errorf("%w: %q has an empty id segment", ErrMalformedTopic, topic)
	}

	var kind Kind
	switch segs[6] {
	case "telemetry":
		kind = KindTelemetry
	case "status":
		kind = KindStatus
	case "command", "ack":
		kind = KindCommandAck
	default:
		return Route{}, fmt.Errorf("%w: unknown kind %q in %q", ErrMalformedTopic, segs[6], topic)
	}

	return Route{
		FarmID:   segs[1],
		RoomID:   segs[3],
		DeviceID: segs[5],
		Kind:     kind,
	}, nil
}
