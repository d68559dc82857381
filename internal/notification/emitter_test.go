package notification

import (
	"context"
	"errors"
	"testing"
	"time"
)

// memRepo records inserts and can be told to fail.
type memRepo struct {
	inserted []*Notification
	failWith error
}

func (m *memRepo) Insert(_ context.Context, n *Notification) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.inserted = append(m.inserted, n)
	return nil
}

func (m *memRepo) GetByID(context.Context, string) (*Notification, error) {
	return nil, ErrNotificationNotFound
}

func (m *memRepo) List(context.Context, bool, int) ([]Notification, error) {
	return nil, nil
}

func (m *memRepo) ListByFarm(context.Context, string, bool, int) ([]Notification, error) {
	return nil, nil
}

func (m *memRepo) Ack(context.Context, string, string, time.Time) error {
	return nil
}

type mockBroadcaster struct {
	created []*Notification
}

func (m *mockBroadcaster) NotificationCreated(n *Notification) {
	m.created = append(m.created, n)
}

func TestEmit_PersistsAndBroadcasts(t *testing.T) {
	repo := &memRepo{}
	bc := &mockBroadcaster{}
	emitter := NewEmitter(repo, WithBroadcaster(bc))

	emitter.Critical(context.Background(), "device reported an error", "farm-1", "room-1", "sensor-1")

	if len(repo.inserted) != 1 {
		t.Fatalf("inserted %d notifications, want 1", len(repo.inserted))
	}
	n := repo.inserted[0]
	if n.Level != LevelCritical {
		t.Errorf("Level = %q, want critical", n.Level)
	}
	if n.ID == "" {
		t.Error("notification should get a generated ID")
	}
	if n.FarmID == nil || *n.FarmID != "farm-1" {
		t.Errorf("FarmID = %v, want farm-1", n.FarmID)
	}

	if len(bc.created) != 1 || bc.created[0] != n {
		t.Error("broadcaster should receive the stored notification")
	}
}

func TestEmit_EmptyScopeStoredAsNil(t *testing.T) {
	repo := &memRepo{}
	emitter := NewEmitter(repo)

	emitter.Info(context.Background(), "rule fired", "farm-1", "", "")

	n := repo.inserted[0]
	if n.RoomID != nil || n.DeviceID != nil {
		t.Errorf("empty scope fields should be nil, got room=%v device=%v", n.RoomID, n.DeviceID)
	}
}

func TestEmit_StorageFailureIsSwallowed(t *testing.T) {
	repo := &memRepo{failWith: errors.New("disk full")}
	bc := &mockBroadcaster{}
	emitter := NewEmitter(repo, WithBroadcaster(bc))

	// Must not panic or propagate; the broadcast is skipped.
	emitter.Warning(context.Background(), "command failed", "farm-1", "room-1", "humidifier-1")

	if len(bc.created) != 0 {
		t.Error("failed insert should not be broadcast")
	}
}
