package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sporelab/mycelia-core/internal/device"
	"github.com/sporelab/mycelia-core/internal/infrastructure/mqtt"
)

// Publisher is the outbound message channel. Satisfied by mqtt.Transport.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Notifier records a warning when a command fails. Satisfied by the
// notification emitter.
type Notifier interface {
	Warning(ctx context.Context, message string, farmID, roomID, deviceID string)
}

// Broadcaster pushes command status changes to live subscribers.
type Broadcaster interface {
	CommandStatus(c *Command)
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

// ackStatuses maps device-reported ack statuses to lifecycle states.
// Firmware vocabulary varies; "done" and "ok" come from older builds.
var ackStatuses = map[string]Status{
	"acked":   StatusAcked,
	"done":    StatusAcked,
	"ok":      StatusAcked,
	"success": StatusAcked,
	"failed":  StatusFailed,
	"error":   StatusFailed,
}

// Manager issues commands and applies device acknowledgements.
type Manager struct {
	repo     Repository
	registry *device.Registry
	pub      Publisher

	notifier    Notifier
	broadcaster Broadcaster
	logger      Logger

	qos    byte
	topics mqtt.Topics

	// now is replaceable for tests.
	now func() time.Time
}

// ManagerOption configures optional manager collaborators.
type ManagerOption func(*Manager)

// WithNotifier wires failure notifications.
func WithNotifier(n Notifier) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

// WithBroadcaster wires the live-subscriber broadcast.
func WithBroadcaster(b Broadcaster) ManagerOption {
	return func(m *Manager) { m.broadcaster = b }
}

// WithLogger sets the manager's logger.
func WithLogger(l Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithQoS sets the publish QoS for outbound commands (default 1).
func WithQoS(qos byte) ManagerOption {
	return func(m *Manager) { m.qos = qos }
}

// NewManager creates a command manager.
func NewManager(repo Repository, registry *device.Registry, pub Publisher, opts ...ManagerOption) *Manager {
	m := &Manager{
		repo:     repo,
		registry: registry,
		pub:      pub,
		logger:   noopLogger{},
		qos:      1,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateAndIssue records a command and publishes it to the device.
//
// The command row is committed as pending before the publish is
// attempted, so a broker outage cannot lose the intent. On publish
// success the status moves to sent. On failure the command stays
// pending and ErrPublishFailed is returned; the caller decides whether
// to surface or retry.
//
// Returns the command in its post-issue state.
func (m *Manager) CreateAndIssue(ctx context.Context, deviceID, name string, params map[string]any, issuedBy string) (*Command, error) {
	d, err := m.registry.Get(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("resolving device %s: %w", deviceID, err)
	}

	c := &Command{
		ID:       uuid.NewString(),
		DeviceID: d.ID,
		RoomID:   d.RoomID,
		FarmID:   d.FarmID,
		Command:  name,
		Params:   params,
		IssuedBy: issuedBy,
		IssuedAt: m.now().UTC(),
		Status:   StatusPending,
	}

	if err := m.repo.Insert(ctx, c); err != nil {
		return nil, fmt.Errorf("recording command: %w", err)
	}

	payload, err := c.WirePayload()
	if err != nil {
		return nil, fmt.Errorf("encoding command payload: %w", err)
	}

	topic := m.topics.DeviceCommand(c.FarmID, c.RoomID, c.DeviceID)
	if err := m.pub.Publish(topic, payload, m.qos, false); err != nil {
		m.logger.Error("command publish failed, command stays pending",
			"command_id", c.ID, "device_id", c.DeviceID, "error", err)
		return c, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	if err := m.repo.UpdateStatus(ctx, c.ID, StatusPending, StatusSent, nil); err != nil {
		// The publish went out; a stuck pending row is recoverable, a
		// failed issue is not. Log and carry on.
		m.logger.Error("failed to mark command sent", "command_id", c.ID, "error", err)
	} else {
		c.Status = StatusSent
	}

	if m.broadcaster != nil {
		m.broadcaster.CommandStatus(c)
	}

	m.logger.Debug("command issued",
		"command_id", c.ID, "device_id", c.DeviceID, "command", c.Command, "issued_by", c.IssuedBy)

	return c, nil
}

// HandleAck applies a device acknowledgement from its ack topic.
//
// Only commands in the sent state accept acks; anything else is a
// protocol violation (duplicate ack, ack for an unpublished command)
// and is rejected with ErrInvalidTransition. A failed ack emits a
// warning notification for farm staff.
func (m *Manager) HandleAck(ctx context.Context, deviceID string, payload []byte) error {
	var ack AckPayload
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedAck, err)
	}
	if ack.CommandID == "" {
		// Outbound command echoes share the channel on some firmware;
		// payloads without a command_id are not acks. Drop quietly.
		return nil
	}

	// Firmware may omit the status entirely on success.
	if ack.Status == "" {
		ack.Status = "acked"
	}
	status, ok := ackStatuses[ack.Status]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrMalformedAck, ack.Status)
	}

	c, err := m.repo.GetByID(ctx, ack.CommandID)
	if err != nil {
		return fmt.Errorf("resolving command %s: %w", ack.CommandID, err)
	}
	if c.DeviceID != deviceID {
		m.logger.Warn("ack from wrong device, ignoring",
			"command_id", c.ID, "expected_device", c.DeviceID, "actual_device", deviceID)
		return fmt.Errorf("%w: ack from device %s for command owned by %s",
			ErrMalformedAck, deviceID, c.DeviceID)
	}

	detail := ack.Detail()
	var message *string
	if detail != "" {
		message = &detail
	}

	if err := m.repo.UpdateStatus(ctx, c.ID, StatusSent, status, message); err != nil {
		return err
	}
	c.Status = status
	c.StatusMessage = message

	if status == StatusFailed && m.notifier != nil {
		m.notifier.Warning(ctx,
			fmt.Sprintf("command %s failed on device %s: %s", c.Command, c.DeviceID, detail),
			c.FarmID, c.RoomID, c.DeviceID)
	}

	if m.broadcaster != nil {
		m.broadcaster.CommandStatus(c)
	}

	m.logger.Debug("command acknowledged",
		"command_id", c.ID, "device_id", c.DeviceID, "status", string(status))

	return nil
}

// Get retrieves a command by ID.
func (m *Manager) Get(ctx context.Context, id string) (*Command, error) {
	return m.repo.GetByID(ctx, id)
}

// ListByDevice retrieves a device's commands newest first.
func (m *Manager) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Command, error) {
	return m.repo.ListByDevice(ctx, deviceID, limit)
}

// IsRetryable reports whether an issue error leaves the command pending
// and eligible for a later retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPublishFailed)
}
