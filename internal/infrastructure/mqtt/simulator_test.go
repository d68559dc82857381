package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestSimulator_PublishDeliversToSubscribers(t *testing.T) {
	sim := NewSimulator()

	var (
		mu       sync.Mutex
		received []string
	)
	err := sim.Subscribe("farm/+/room/+/device/+/telemetry", 1, func(topic string, _ []byte) error {
		mu.Lock()
		received = append(received, topic)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	topic := Topics{}.DeviceTelemetry("f1", "r1", "d1")
	if err := sim.Publish(topic, []byte(`{}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// Delivery is synchronous; no sync needed beyond the mutex.
	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != topic {
		t.Errorf("received = %v, want [%s]", received, topic)
	}
}

func TestSimulator_NonMatchingTopicSkipped(t *testing.T) {
	sim := NewSimulator()

	called := false
	_ = sim.Subscribe(Topics{}.AllStatus(), 1, func(string, []byte) error {
		called = true
		return nil
	})

	if err := sim.Publish(Topics{}.DeviceTelemetry("f1", "r1", "d1"), nil, 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if called {
		t.Error("status subscriber should not receive telemetry")
	}
}

func TestSimulator_PublishRecorded(t *testing.T) {
	sim := NewSimulator()

	if err := sim.Publish("farm/f1/room/r1/device/d1/command", []byte(`{"command_id":"c1"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	published := sim.Published()
	if len(published) != 1 {
		t.Fatalf("Published() returned %d messages, want 1", len(published))
	}
	if published[0].Topic != "farm/f1/room/r1/device/d1/command" {
		t.Errorf("Topic = %q", published[0].Topic)
	}
}

func TestSimulator_ClosedTransportRejectsPublish(t *testing.T) {
	sim := NewSimulator()
	if err := sim.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := sim.Publish("farm/f1/room/r1/device/d1/status", nil, 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close error = %v, want ErrNotConnected", err)
	}
	if sim.HealthCheck(context.Background()) == nil {
		t.Error("HealthCheck() should fail after Close")
	}
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"farm/+/room/+/device/+/telemetry", "farm/f1/room/r1/device/d1/telemetry", true},
		{"farm/+/room/+/device/+/telemetry", "farm/f1/room/r1/device/d1/status", false},
		{"farm/f1/#", "farm/f1/room/r1/device/d1/ack", true},
		{"farm/f1/#", "farm/f2/room/r1/device/d1/ack", false},
		{"farm/+/room/+/device/+/status", "farm/f1/room/r1/device/d1", false},
		{"mycelia/system/status", "mycelia/system/status", true},
	}

	for _, tt := range tests {
		if got := TopicMatches(tt.pattern, tt.topic); got != tt.want {
			t.Errorf("TopicMatches(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
		}
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	if got := topics.DeviceCommand("f1", "r1", "d1"); got != "farm/f1/room/r1/device/d1/command" {
		t.Errorf("DeviceCommand() = %q", got)
	}
	if got := topics.DeviceAck("f1", "r1", "d1"); got != "farm/f1/room/r1/device/d1/ack" {
		t.Errorf("DeviceAck() = %q", got)
	}
	if got := topics.AllTelemetry(); got != "farm/+/room/+/device/+/telemetry" {
		t.Errorf("AllTelemetry() = %q", got)
	}
}

func TestNewTransport_ModeSelection(t *testing.T) {
	transport, err := NewTransport(TransportConfig{Mode: ModeSimulated})
	if err != nil {
		t.Fatalf("NewTransport(simulated) error = %v", err)
	}
	if _, ok := transport.(*Simulator); !ok {
		t.Errorf("NewTransport(simulated) = %T, want *Simulator", transport)
	}

	if _, err := NewTransport(TransportConfig{Mode: "telepathy"}); err == nil {
		t.Error("NewTransport(unknown mode) should fail")
	}
}
