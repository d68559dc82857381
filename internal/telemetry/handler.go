package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sporelab/mycelia-core/internal/device"
)

// Evaluator is notified after a reading is persisted so threshold rules
// can react to it. Implemented by the automation package.
type Evaluator interface {
	EvaluateReading(ctx context.Context, r *Reading)
}

// Broadcaster pushes ingested readings to live subscribers (WebSocket
// clients watching the room or farm).
type Broadcaster interface {
	TelemetryReceived(r *Reading)
}

// Mirror receives a copy of every persisted reading for time-series
// storage. Matches the influxdb client's WriteReading signature.
type Mirror interface {
	WriteReading(deviceID, roomID, farmID string, fields map[string]interface{}, recordedAt time.Time)
}

// Toucher records message arrivals for the liveness sweep.
type Toucher interface {
	Touch(deviceID string, at time.Time)
}

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

// Handler processes telemetry messages from the ingestion pipeline.
//
// Processing order per message: resolve the device, decode and
// timestamp the payload, persist reading plus liveness in one
// transaction, then fan out (liveness touch, spawned rule evaluation,
// room broadcast, time-series mirror). Persistence failures abort the
// message; fan-out failures never do.
type Handler struct {
	registry *device.Registry
	repo     Repository

	liveness    Toucher
	evaluator   Evaluator
	broadcaster Broadcaster
	mirror      Mirror

	logger Logger

	// now is replaceable for tests.
	now func() time.Time
}

// HandlerOption configures optional fan-out targets.
type HandlerOption func(*Handler)

// WithLiveness wires the liveness tracker.
func WithLiveness(t Toucher) HandlerOption {
	return func(h *Handler) { h.liveness = t }
}

// WithEvaluator wires the automation evaluator.
func WithEvaluator(e Evaluator) HandlerOption {
	return func(h *Handler) { h.evaluator = e }
}

// WithBroadcaster wires the live-subscriber broadcast.
func WithBroadcaster(b Broadcaster) HandlerOption {
	return func(h *Handler) { h.broadcaster = b }
}

// WithMirror wires the time-series mirror.
func WithMirror(m Mirror) HandlerOption {
	return func(h *Handler) { h.mirror = m }
}

// WithLogger sets the handler's logger.
func WithLogger(l Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a telemetry handler. Registry and repository are
// required; everything else is optional fan-out.
func NewHandler(registry *device.Registry, repo Repository, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry: registry,
		repo:     repo,
		logger:   noopLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes one telemetry message.
//
// farmID and roomID come from the topic; the device's provisioned
// ownership wins if they disagree, since topics are built by firmware
// and firmware gets misconfigured.
//
// Returns an error when the message was dropped (unknown device, bad
// payload) or persistence failed. Fan-out problems are logged only.
func (h *Handler) Handle(ctx context.Context, farmID, roomID, deviceID string, payload []byte) error {
	d, err := h.registry.Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			h.logger.Warn("telemetry from unknown device, dropping",
				"device_id", deviceID, "farm_id", farmID, "room_id", roomID)
		}
		return fmt.Errorf("resolving device %s: %w", deviceID, err)
	}

	if d.RoomID != roomID || d.FarmID != farmID {
		h.logger.Warn("telemetry topic ownership mismatch, using provisioned placement",
			"device_id", deviceID,
			"topic_farm", farmID, "topic_room", roomID,
			"actual_farm", d.FarmID, "actual_room", d.RoomID)
	}

	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.logger.Warn("malformed telemetry payload, dropping",
			"device_id", deviceID, "error", err)
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	now := h.now().UTC()
	if !p.HasMetrics() {
		// Still proof of life: the device spoke, so liveness updates even
		// though there is nothing to store.
		if err := h.registry.MarkOnline(ctx, d.ID, now); err != nil {
			h.logger.Warn("marking device online failed", "device_id", d.ID, "error", err)
		}
		if h.liveness != nil {
			h.liveness.Touch(d.ID, now)
		}
		h.logger.Warn("telemetry payload carries no metrics, reading dropped", "device_id", d.ID)
		return ErrEmptyPayload
	}

	m := p.metrics()
	reading := &Reading{
		ID:                uuid.NewString(),
		DeviceID:          d.ID,
		RoomID:            d.RoomID,
		FarmID:            d.FarmID,
		TemperatureC:      m.Temperature,
		HumidityPct:       m.Humidity,
		CO2PPM:            m.CO2,
		LightLux:          m.Light,
		SubstrateMoisture: m.SubstrateMoisture,
		BatteryV:          m.Battery,
		RecordedAt:        ParseTimestamp(p.Timestamp, now),
	}

	if err := h.repo.InsertWithLiveness(ctx, reading, now); err != nil {
		return fmt.Errorf("persisting reading: %w", err)
	}

	// Durable state is committed; reflect it in the cache and the sweep.
	h.registry.NoteSeen(d.ID, now)
	if h.liveness != nil {
		h.liveness.Touch(d.ID, now)
	}

	if h.evaluator != nil {
		// Rule evaluation can publish commands and wait on the broker; it
		// must never hold up the ingest worker.
		go h.evaluator.EvaluateReading(context.WithoutCancel(ctx), reading)
	}
	if h.broadcaster != nil {
		h.broadcaster.TelemetryReceived(reading)
	}
	if h.mirror != nil {
		h.mirror.WriteReading(reading.DeviceID, reading.RoomID, reading.FarmID,
			reading.Fields(), reading.RecordedAt)
	}

	h.logger.Debug("telemetry ingested",
		"device_id", d.ID, "room_id", d.RoomID, "reading_id", reading.ID)

	return nil
}
