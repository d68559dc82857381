package ingest

import (
	"errors"
	"testing"
)

func TestParseTopic(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		want  Route
	}{
		{
			name:  "telemetry",
			topic: "farm/f1/room/r3/device/sensor-7/telemetry",
			want:  Route{FarmID: "f1", RoomID: "r3", DeviceID: "sensor-7", Kind: KindTelemetry},
		},
		{
			name:  "status",
			topic: "farm/f1/room/r3/device/sensor-7/status",
			want:  Route{FarmID: "f1", RoomID: "r3", DeviceID: "sensor-7", Kind: KindStatus},
		},
		{
			name:  "ack",
			topic: "farm/f1/room/r3/device/humidifier-2/ack",
			want:  Route{FarmID: "f1", RoomID: "r3", DeviceID: "humidifier-2", Kind: KindCommandAck},
		},
		{
			name:  "command channel maps to ack kind",
			topic: "farm/f1/room/r3/device/humidifier-2/command",
			want:  Route{FarmID: "f1", RoomID: "r3", DeviceID: "humidifier-2", Kind: KindCommandAck},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTopic(tt.topic)
			if err != nil {
				t.Fatalf("ParseTopic(%q) failed: %v", tt.topic, err)
			}
			if got != tt.want {
				t.Errorf("ParseTopic(%q) = %+v, want %+v", tt.topic, got, tt.want)
			}
		})
	}
}

func TestParseTopicMalformed(t *testing.T) {
	topics := []string{
		"",
		"farm/f1/room/r3/device/sensor-7",              // missing kind
		"farm/f1/room/r3/device/sensor-7/telemetry/x",  // too many segments
		"farm/f1/zone/r3/device/sensor-7/telemetry",    // wrong literal
		"farm//room/r3/device/sensor-7/telemetry",      // empty farm id
		"farm/f1/room/r3/device//telemetry",            // empty device id
		"farm/f1/room/r3/device/sensor-7/diagnostics",  // unknown kind
		"barn/f1/room/r3/device/sensor-7/telemetry",    // wrong root
	}

	for _, topic := range topics {
		if _, err := ParseTopic(topic); !errors.Is(err, ErrMalformedTopic) {
			t.Errorf("ParseTopic(%q) err = %v, want ErrMalformedTopic", topic, err)
		}
	}
}
