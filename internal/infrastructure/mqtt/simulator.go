package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Simulator is an in-process Transport used in development mode and tests.
//
// Published messages are delivered synchronously to every local subscriber
// whose pattern matches the topic. There is no broker, no QoS handling, and
// no retained-message store; retained and qos arguments are accepted and
// ignored so callers behave identically against both transports.
//
// Thread Safety: all methods are safe for concurrent use.
type Simulator struct {
	mu       sync.RWMutex
	handlers map[string]MessageHandler
	closed   bool

	// published records every publish for test inspection.
	published []SimulatedMessage

	logger   Logger
	loggerMu sync.RWMutex
}

// SimulatedMessage is a captured publish, exposed for test assertions.
type SimulatedMessage struct {
	Topic   string
	Payload []byte
}

// NewSimulator creates an empty simulated transport.
func NewSimulator() *Simulator {
	return &Simulator{
		handlers: make(map[string]MessageHandler),
	}
}

// Publish delivers the payload to every matching subscriber.
//
// Handler errors are logged (if a logger is set) and do not fail the
// publish, mirroring broker semantics where the publisher never observes
// subscriber failures.
func (s *Simulator) Publish(topic string, payload []byte, _ byte, _ bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.published = append(s.published, SimulatedMessage{Topic: topic, Payload: payload})
	matched := make([]MessageHandler, 0, len(s.handlers))
	for pattern, handler := range s.handlers {
		if TopicMatches(pattern, topic) {
			matched = append(matched, handler)
		}
	}
	s.mu.Unlock()

	for _, handler := range matched {
		if err := handler(topic, payload); err != nil {
			s.loggerMu.RLock()
			logger := s.logger
			s.loggerMu.RUnlock()
			if logger != nil {
				logger.Warn("simulated handler returned error", "topic", topic, "error", err)
			}
		}
	}

	return nil
}

// Subscribe registers a handler for a topic pattern (+ and # wildcards
// supported).
func (s *Simulator) Subscribe(topic string, _ byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotConnected
	}
	s.handlers[topic] = handler
	return nil
}

// Unsubscribe removes a subscription.
func (s *Simulator) Unsubscribe(topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, topic)
	return nil
}

// IsConnected reports whether the simulator is still open.
func (s *Simulator) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// HealthCheck reports healthy while the simulator is open.
func (s *Simulator) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}
	if !s.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close shuts the simulator down; further publishes fail with ErrNotConnected.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.handlers = make(map[string]MessageHandler)
	return nil
}

// SetLogger sets a logger for handler error reporting.
func (s *Simulator) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// Published returns a copy of every message published so far.
func (s *Simulator) Published() []SimulatedMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cpy := make([]SimulatedMessage, len(s.published))
	copy(cpy, s.published)
	return cpy
}

// TopicMatches reports whether an MQTT topic pattern matches a concrete
// topic. "+" matches exactly one level; "#" matches any number of trailing
// levels (including zero).
func TopicMatches(pattern, topic string) bool {
	patternSegs := strings.Split(pattern, "/")
	topicSegs := strings.Split(topic, "/")

	for i, seg := range patternSegs {
		if seg == "#" {
			return true
		}
		if i >= len(topicSegs) {
			return false
		}
		if seg != "+" && seg != topicSegs[i] {
			return false
		}
	}

	return len(patternSegs) == len(topicSegs)
}
