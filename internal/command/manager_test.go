package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sporelab/mycelia-core/internal/device"
)

// ─── Mocks ───────────────────────────────────────────────────────────────────

type memRepo struct {
	mu       sync.Mutex
	commands map[string]*Command
}

func newMemRepo() *memRepo {
	return &memRepo{commands: make(map[string]*Command)}
}

func (m *memRepo) Insert(_ context.Context, c *Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := *c
	m.commands[c.ID] = &cpy
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commands[id]
	if !ok {
		return nil, ErrCommandNotFound
	}
	cpy := *c
	return &cpy, nil
}

func (m *memRepo) ListByDevice(_ context.Context, deviceID string, _ int) ([]Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Command
	for _, c := range m.commands {
		if c.DeviceID == deviceID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id string, from, to Status, message *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commands[id]
	if !ok {
		return ErrCommandNotFound
	}
	if c.Status != from {
		return ErrInvalidTransition
	}
	c.Status = to
	c.StatusMessage = message
	return nil
}

type mockPublisher struct {
	mu        sync.Mutex
	published []struct {
		topic   string
		payload []byte
	}
	failWith error
}

func (m *mockPublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, struct {
		topic   string
		payload []byte
	}{topic, payload})
	return nil
}

type mockNotifier struct {
	mu       sync.Mutex
	warnings []string
}

func (m *mockNotifier) Warning(_ context.Context, message string, _, _, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, message)
}

type stubDeviceRepo struct {
	devices map[string]*device.Device
}

func (s *stubDeviceRepo) GetByID(_ context.Context, id string) (*device.Device, error) {
	d, ok := s.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (s *stubDeviceRepo) List(_ context.Context) ([]device.Device, error) { return nil, nil }
func (s *stubDeviceRepo) ListByRoom(_ context.Context, _ string) ([]device.Device, error) {
	return nil, nil
}
func (s *stubDeviceRepo) ListByStatus(_ context.Context, _ device.Status) ([]device.Device, error) {
	return nil, nil
}
func (s *stubDeviceRepo) Create(_ context.Context, _ *device.Device) error { return nil }
func (s *stubDeviceRepo) UpdateStatus(_ context.Context, _ string, _ device.Status, _ *time.Time) error {
	return nil
}
func (s *stubDeviceRepo) UpdateFirmware(_ context.Context, _ string, _ string) error { return nil }

// ─── Fixtures ────────────────────────────────────────────────────────────────

func newTestManager(_ *testing.T) (*Manager, *memRepo, *mockPublisher, *mockNotifier) {
	registry := device.NewRegistry(&stubDeviceRepo{devices: map[string]*device.Device{
		"humidifier-2": {
			ID:     "humidifier-2",
			RoomID: "room-3",
			FarmID: "farm-1",
			Name:   "Fruiting Room Humidifier",
			Status: device.StatusOnline,
		},
	}})

	repo := newMemRepo()
	pub := &mockPublisher{}
	notifier := &mockNotifier{}

	m := NewManager(repo, registry, pub, WithNotifier(notifier))
	return m, repo, pub, notifier
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestCreateAndIssuePublishesAndMarksSent(t *testing.T) {
	m, repo, pub, _ := newTestManager(t)

	c, err := m.CreateAndIssue(context.Background(), "humidifier-2", "set_humidity",
		map[string]any{"target_pct": 90}, "user-42")
	if err != nil {
		t.Fatalf("CreateAndIssue failed: %v", err)
	}

	if c.Status != StatusSent {
		t.Errorf("Status = %q, want sent", c.Status)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.published))
	}
	wantTopic := "farm/farm-1/room/room-3/device/humidifier-2/command"
	if pub.published[0].topic != wantTopic {
		t.Errorf("topic = %q, want %q", pub.published[0].topic, wantTopic)
	}

	stored, err := repo.GetByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != StatusSent {
		t.Errorf("stored status = %q, want sent", stored.Status)
	}
}

func TestCreateAndIssuePublishFailureStaysPending(t *testing.T) {
	m, repo, pub, _ := newTestManager(t)
	pub.failWith = errors.New("broker unreachable")

	c, err := m.CreateAndIssue(context.Background(), "humidifier-2", "set_humidity", nil, "user-42")
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("err = %v, want ErrPublishFailed", err)
	}
	if c == nil {
		t.Fatal("command should still be returned on publish failure")
	}

	stored, err := repo.GetByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != StatusPending {
		t.Errorf("stored status = %q, want pending after failed publish", stored.Status)
	}
	if !IsRetryable(err) {
		t.Error("publish failure should be retryable")
	}
}

func TestCreateAndIssueUnknownDevice(t *testing.T) {
	m, _, pub, _ := newTestManager(t)

	_, err := m.CreateAndIssue(context.Background(), "ghost", "set_humidity", nil, "user-42")
	if !errors.Is(err, device.ErrDeviceNotFound) {
		t.Fatalf("err = %v, want ErrDeviceNotFound", err)
	}
	if len(pub.published) != 0 {
		t.Error("published a command for an unknown device")
	}
}

func TestHandleAckSuccess(t *testing.T) {
	m, repo, _, _ := newTestManager(t)

	c, err := m.CreateAndIssue(context.Background(), "humidifier-2", "set_humidity", nil, "user-42")
	if err != nil {
		t.Fatalf("CreateAndIssue failed: %v", err)
	}

	ack := []byte(`{"command_id": "` + c.ID + `", "status": "acked"}`)
	if err := m.HandleAck(context.Background(), "humidifier-2", ack); err != nil {
		t.Fatalf("HandleAck failed: %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), c.ID)
	if stored.Status != StatusAcked {
		t.Errorf("status = %q, want acked", stored.Status)
	}
}

func TestHandleAckFailureEmitsWarning(t *testing.T) {
	m, repo, _, notifier := newTestManager(t)

	c, err := m.CreateAndIssue(context.Background(), "humidifier-2", "set_humidity", nil, "user-42")
	if err != nil {
		t.Fatalf("CreateAndIssue failed: %v", err)
	}

	ack := []byte(`{"command_id": "` + c.ID + `", "status": "failed", "message": "valve stuck"}`)
	if err := m.HandleAck(context.Background(), "humidifier-2", ack); err != nil {
		t.Fatalf("HandleAck failed: %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), c.ID)
	if stored.Status != StatusFailed {
		t.Errorf("status = %q, want failed", stored.Status)
	}
	if stored.StatusMessage == nil || *stored.StatusMessage != "valve stuck" {
		t.Errorf("StatusMessage = %v, want valve stuck", stored.StatusMessage)
	}
	if len(notifier.warnings) != 1 {
		t.Fatalf("emitted %d warnings, want 1", len(notifier.warnings))
	}
}

func TestHandleAckMissingStatusDefaultsToAcked(t *testing.T) {
	m, repo, _, _ := newTestManager(t)

	c, err := m.CreateAndIssue(context.Background(), "humidifier-2", "set_humidity", nil, "user-42")
	if err != nil {
		t.Fatalf("CreateAndIssue failed: %v", err)
	}

	// Some firmware omits the status on success.
	ack := []byte(`{"command_id": "` + c.ID + `"}`)
	if err := m.HandleAck(context.Background(), "humidifier-2", ack); err != nil {
		t.Fatalf("HandleAck failed: %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), c.ID)
	if stored.Status != StatusAcked {
		t.Errorf("status = %q, statusless ack must default to acked", stored.Status)
	}
}

func TestHandleAckErrorFieldCarriesDetail(t *testing.T) {
	m, repo, _, notifier := newTestManager(t)

	c, err := m.CreateAndIssue(context.Background(), "humidifier-2", "set_humidity", nil, "user-42")
	if err != nil {
		t.Fatalf("CreateAndIssue failed: %v", err)
	}

	// Failure detail arrives under "error" on some firmware builds.
	ack := []byte(`{"command_id": "` + c.ID + `", "status": "failed", "error": "relay stuck"}`)
	if err := m.HandleAck(context.Background(), "humidifier-2", ack); err != nil {
		t.Fatalf("HandleAck failed: %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), c.ID)
	if stored.Status != StatusFailed {
		t.Errorf("status = %q, want failed", stored.Status)
	}
	if stored.StatusMessage == nil || *stored.StatusMessage != "relay stuck" {
		t.Errorf("StatusMessage = %v, want relay stuck", stored.StatusMessage)
	}
	if len(notifier.warnings) != 1 {
		t.Fatalf("emitted %d warnings, want 1", len(notifier.warnings))
	}
	if !strings.Contains(notifier.warnings[0], "relay stuck") {
		t.Errorf("warning %q should carry the device's failure detail", notifier.warnings[0])
	}
}

func TestHandleAckRejectsDuplicate(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	c, err := m.CreateAndIssue(context.Background(), "humidifier-2", "set_humidity", nil, "user-42")
	if err != nil {
		t.Fatalf("CreateAndIssue failed: %v", err)
	}

	ack := []byte(`{"command_id": "` + c.ID + `", "status": "acked"}`)
	if err := m.HandleAck(context.Background(), "humidifier-2", ack); err != nil {
		t.Fatalf("first HandleAck failed: %v", err)
	}

	err = m.HandleAck(context.Background(), "humidifier-2", ack)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("duplicate ack err = %v, want ErrInvalidTransition", err)
	}
}

func TestHandleAckRejectsPendingCommand(t *testing.T) {
	m, repo, pub, _ := newTestManager(t)
	pub.failWith = errors.New("broker unreachable")

	// Publish fails, command stays pending.
	c, _ := m.CreateAndIssue(context.Background(), "humidifier-2", "set_humidity", nil, "user-42")

	pub.failWith = nil
	ack := []byte(`{"command_id": "` + c.ID + `", "status": "acked"}`)
	err := m.HandleAck(context.Background(), "humidifier-2", ack)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("ack for pending command err = %v, want ErrInvalidTransition", err)
	}

	stored, _ := repo.GetByID(context.Background(), c.ID)
	if stored.Status != StatusPending {
		t.Errorf("status = %q, pending command must not transition on ack", stored.Status)
	}
}

func TestHandleAckIgnoresCommandEcho(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	// Some firmware echoes the outbound command on the shared channel;
	// payloads without a command_id status are not acks.
	echo := []byte(`{"command": "set_humidity", "params": {"target_pct": 90}}`)
	if err := m.HandleAck(context.Background(), "humidifier-2", echo); err != nil {
		t.Errorf("command echo err = %v, want nil", err)
	}
}

func TestHandleAckWrongDevice(t *testing.T) {
	m, repo, _, _ := newTestManager(t)

	c, err := m.CreateAndIssue(context.Background(), "humidifier-2", "set_humidity", nil, "user-42")
	if err != nil {
		t.Fatalf("CreateAndIssue failed: %v", err)
	}

	ack := []byte(`{"command_id": "` + c.ID + `", "status": "acked"}`)
	err = m.HandleAck(context.Background(), "imposter", ack)
	if !errors.Is(err, ErrMalformedAck) {
		t.Errorf("err = %v, want ErrMalformedAck", err)
	}

	stored, _ := repo.GetByID(context.Background(), c.ID)
	if stored.Status != StatusSent {
		t.Errorf("status = %q, wrong-device ack must not transition", stored.Status)
	}
}
