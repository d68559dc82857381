package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sporelab/mycelia-core/internal/infrastructure/mqtt"
)

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TelemetryHandler processes telemetry messages. Satisfied by the
// telemetry handler.
type TelemetryHandler interface {
	Handle(ctx context.Context, farmID, roomID, deviceID string, payload []byte) error
}

// StatusHandler processes device status announcements. Satisfied by the
// StatusProcessor.
type StatusHandler interface {
	HandleStatus(ctx context.Context, farmID, roomID, deviceID string, payload []byte) error
}

// Subscriber is the transport subset the router needs. Satisfied by
// mqtt.Transport.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// message is one queued inbound message.
type message struct {
	route   Route
	payload []byte
}

// Router subscribes to the device wildcards and dispatches messages to
// the kind-specific handlers through a bounded queue and worker pool.
type Router struct {
	sub       Subscriber
	telemetry TelemetryHandler
	status    StatusHandler
	acks      AckHandler

	queue   chan message
	workers int
	qos     byte
	logger  Logger

	// dropped counts messages discarded because the queue was full.
	dropped atomic.Uint64
	// malformed counts messages discarded for unparseable topics.
	malformed atomic.Uint64

	wg sync.WaitGroup
}

// RouterConfig sizes the router's queue and worker pool.
type RouterConfig struct {
	// QueueSize bounds the inbound queue (default 1024).
	QueueSize int
	// Workers is the number of dispatch goroutines (default 4).
	Workers int
	// QoS for the wildcard subscriptions (default 1).
	QoS byte
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the router's logger.
func WithRouterLogger(l Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a router dispatching to the given handlers.
func NewRouter(sub Subscriber, telemetry TelemetryHandler, status StatusHandler, acks AckHandler, cfg RouterConfig, opts ...RouterOption) *Router {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QoS == 0 {
		cfg.QoS = 1
	}

	r := &Router{
		sub:       sub,
		telemetry: telemetry,
		status:    status,
		acks:      acks,
		queue:     make(chan message, cfg.QueueSize),
		workers:   cfg.Workers,
		qos:       cfg.QoS,
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the worker pool and subscribes to the device
// wildcards. Workers exit when ctx is cancelled; Wait blocks until
// they have drained.
func (r *Router) Start(ctx context.Context) error {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.work(ctx)
	}

	topics := mqtt.Topics{}
	for _, pattern := range []string{topics.AllTelemetry(), topics.AllStatus(), topics.AllAcks()} {
		if err := r.sub.Subscribe(pattern, r.qos, r.enqueue); err != nil {
			return fmt.Errorf("subscribing to %s: %w", pattern, err)
		}
	}

	r.logger.Debug("ingest router started", "workers", r.workers, "queue_size", cap(r.queue))
	return nil
}

// Wait blocks until all workers have exited after ctx cancellation.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Dropped returns the number of messages discarded due to a full queue.
func (r *Router) Dropped() uint64 {
	return r.dropped.Load()
}

// Malformed returns the number of messages discarded for bad topics.
func (r *Router) Malformed() uint64 {
	return r.malformed.Load()
}

// enqueue is the transport callback. It must stay cheap: parse, copy,
// and a non-blocking channel send.
func (r *Router) enqueue(topic string, payload []byte) error {
	route, err := ParseTopic(topic)
	if err != nil {
		r.malformed.Add(1)
		r.logger.Warn("dropping message with malformed topic", "topic", topic, "error", err)
		return nil
	}

	// The transport may reuse the payload buffer after the callback
	// returns; the queue needs its own copy.
	body := make([]byte, len(payload))
	copy(body, payload)

	select {
	case r.queue <- message{route: route, payload: body}:
		return nil
	default:
		r.dropped.Add(1)
		r.logger.Warn("ingest queue full, dropping message",
			"topic", topic, "dropped_total", r.dropped.Load())
		return nil
	}
}

func (r *Router) work(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.queue:
			r.dispatch(ctx, msg)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, msg message) {
	var err error
	switch msg.route.Kind {
	case KindTelemetry:
		err = r.telemetry.Handle(ctx, msg.route.FarmID, msg.route.RoomID, msg.route.DeviceID, msg.payload)
	case KindStatus:
		err = r.status.HandleStatus(ctx, msg.route.FarmID, msg.route.RoomID, msg.route.DeviceID, msg.payload)
	case KindCommandAck:
		err = r.acks.HandleAck(ctx, msg.route.DeviceID, msg.payload)
	}

	if err != nil {
		r.logger.Warn("message handling failed",
			"kind", string(msg.route.Kind), "device_id", msg.route.DeviceID, "error", err)
	}
}
