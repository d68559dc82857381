package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sporelab/mycelia-core/internal/device"
)

// statusPayload is the wire format of device status announcements.
type statusPayload struct {
	Status          string `json:"status"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	Error           string `json:"error,omitempty"`

	// CommandID marks a status message that is really a command
	// acknowledgment (one firmware variant reports acks this way).
	CommandID string `json:"command_id,omitempty"`
}

// AckHandler applies command acknowledgments. Satisfied by the command
// manager.
type AckHandler interface {
	HandleAck(ctx context.Context, deviceID string, payload []byte) error
}

// CriticalNotifier records device error reports. Satisfied by the
// notification emitter.
type CriticalNotifier interface {
	Critical(ctx context.Context, message string, farmID, roomID, deviceID string)
}

// Toucher mirrors the liveness tracker's arrival recording.
type Toucher interface {
	Touch(deviceID string, at time.Time)
	Forget(deviceID string)
}

// StatusBroadcaster pushes liveness changes to live subscribers.
type StatusBroadcaster interface {
	DeviceStatus(deviceID, roomID, farmID string, status device.Status)
}

// StatusProcessor applies device status announcements: liveness
// transitions, firmware versions, error reports, and embedded command
// acknowledgments.
type StatusProcessor struct {
	registry *device.Registry

	acks        AckHandler
	liveness    Toucher
	notifier    CriticalNotifier
	broadcaster StatusBroadcaster
	logger      Logger

	now func() time.Time
}

// StatusOption configures optional processor collaborators.
type StatusOption func(*StatusProcessor)

// WithAckHandler wires command-id-bearing status messages to the
// command lifecycle.
func WithAckHandler(h AckHandler) StatusOption {
	return func(p *StatusProcessor) { p.acks = h }
}

// WithStatusLiveness wires the liveness tracker.
func WithStatusLiveness(t Toucher) StatusOption {
	return func(p *StatusProcessor) { p.liveness = t }
}

// WithStatusNotifier wires device-error notifications.
func WithStatusNotifier(n CriticalNotifier) StatusOption {
	return func(p *StatusProcessor) { p.notifier = n }
}

// WithStatusBroadcaster wires the live-subscriber broadcast.
func WithStatusBroadcaster(b StatusBroadcaster) StatusOption {
	return func(p *StatusProcessor) { p.broadcaster = b }
}

// WithStatusLogger sets the processor's logger.
func WithStatusLogger(l Logger) StatusOption {
	return func(p *StatusProcessor) { p.logger = l }
}

// NewStatusProcessor creates a status processor.
func NewStatusProcessor(registry *device.Registry, opts ...StatusOption) *StatusProcessor {
	p := &StatusProcessor{
		registry: registry,
		logger:   noopLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleStatus processes one status message.
func (p *StatusProcessor) HandleStatus(ctx context.Context, farmID, roomID, deviceID string, payload []byte) error {
	var s statusPayload
	if err := json.Unmarshal(payload, &s); err != nil {
		p.logger.Warn("malformed status payload, dropping", "device_id", deviceID, "error", err)
		return fmt.Errorf("decoding status payload: %w", err)
	}

	// One firmware variant acknowledges commands on its status topic.
	if s.CommandID != "" && p.acks != nil {
		return p.acks.HandleAck(ctx, deviceID, payload)
	}

	d, err := p.registry.Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			p.logger.Warn("status from unknown device, dropping", "device_id", deviceID)
		}
		return fmt.Errorf("resolving device %s: %w", deviceID, err)
	}

	if s.FirmwareVersion != "" {
		if err := p.registry.SetFirmware(ctx, d.ID, s.FirmwareVersion); err != nil {
			p.logger.Warn("recording firmware version failed", "device_id", d.ID, "error", err)
		}
	}

	// An error report stands alone: it may arrive with any status, or
	// with none at all.
	detail := s.Error
	if detail == "" && s.Status == "error" {
		detail = "no detail reported"
	}
	if detail != "" && p.notifier != nil {
		p.notifier.Critical(ctx,
			fmt.Sprintf("device %s reported an error: %s", d.Name, detail),
			d.FarmID, d.RoomID, d.ID)
	}

	now := p.now().UTC()
	switch s.Status {
	case "online", "", "error":
		// Any message is proof of life, and an erroring device is alive
		// enough to complain.
		if err := p.registry.MarkOnline(ctx, d.ID, now); err != nil {
			return fmt.Errorf("marking device online: %w", err)
		}
		if p.liveness != nil {
			p.liveness.Touch(d.ID, now)
		}
		p.broadcast(d, device.StatusOnline)

	case "offline":
		// A deliberate goodbye; no offline notification needed.
		if err := p.registry.MarkOffline(ctx, d.ID); err != nil {
			return fmt.Errorf("marking device offline: %w", err)
		}
		if p.liveness != nil {
			p.liveness.Forget(d.ID)
		}
		p.broadcast(d, device.StatusOffline)

	default:
		p.logger.Warn("unknown device status, dropping",
			"device_id", d.ID, "status", s.Status)
	}

	return nil
}

func (p *StatusProcessor) broadcast(d *device.Device, status device.Status) {
	if p.broadcaster != nil {
		p.broadcaster.DeviceStatus(d.ID, d.RoomID, d.FarmID, status)
	}
}
