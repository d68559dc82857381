package mqtt

import (
	"context"
	"fmt"
)

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on transport goroutines and should not block for
// extended periods.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload (typically JSON)
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Transport is the capability interface the rest of the core programs
// against. It is satisfied by the real broker-backed Client and by the
// in-process Simulator; the implementation is chosen once at startup from
// mqtt.mode, never branched per call.
type Transport interface {
	// Publish sends a message to the specified topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for messages matching the topic pattern.
	Subscribe(topic string, qos byte, handler MessageHandler) error

	// Unsubscribe removes a subscription.
	Unsubscribe(topic string) error

	// IsConnected reports whether the transport can currently deliver.
	IsConnected() bool

	// HealthCheck verifies the transport is alive.
	HealthCheck(ctx context.Context) error

	// Close shuts the transport down gracefully.
	Close() error
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Mode names accepted in mqtt.mode.
const (
	ModeBroker    = "broker"
	ModeSimulated = "simulated"
)

// TransportConfig mirrors config.MQTTConfig without importing the config
// package (avoids an import cycle for packages that construct transports in
// tests).
type TransportConfig struct {
	Mode string

	Host     string
	Port     int
	TLS      bool
	ClientID string

	Username string
	Password string

	QoS int

	ReconnectInitialDelay int
	ReconnectMaxDelay     int
}

// NewTransport creates the transport selected by cfg.Mode.
//
// Returns:
//   - Transport: connected Client for "broker", fresh Simulator for "simulated"
//   - error: unknown mode, or broker connection failure
func NewTransport(cfg TransportConfig) (Transport, error) {
	switch cfg.Mode {
	case ModeSimulated:
		return NewSimulator(), nil
	case ModeBroker, "":
		return Connect(cfg)
	default:
		return nil, fmt.Errorf("unknown mqtt mode %q", cfg.Mode)
	}
}
