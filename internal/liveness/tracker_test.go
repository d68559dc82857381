package liveness

import (
	"testing"
	"time"
)

func TestSweepMarksSilentDevicesOffline(t *testing.T) {
	tracker := NewTracker(5*time.Minute, time.Minute)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.Touch("quiet", base)
	tracker.Touch("chatty", base.Add(4*time.Minute))

	var offline []string
	tracker.SetOnOffline(func(deviceID string, _ time.Time) {
		offline = append(offline, deviceID)
	})

	expired := tracker.Sweep(base.Add(6 * time.Minute))

	if len(expired) != 1 || expired[0] != "quiet" {
		t.Errorf("expired = %v, want [quiet]", expired)
	}
	if len(offline) != 1 || offline[0] != "quiet" {
		t.Errorf("offline callbacks = %v, want [quiet]", offline)
	}
	if tracker.Tracked() != 1 {
		t.Errorf("Tracked = %d, want 1 (chatty still tracked)", tracker.Tracked())
	}
}

func TestSweepFiresOncePerSilence(t *testing.T) {
	tracker := NewTracker(5*time.Minute, time.Minute)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.Touch("sensor-1", base)

	count := 0
	tracker.SetOnOffline(func(string, time.Time) { count++ })

	// Repeated sweeps past the threshold must not re-report the device.
	tracker.Sweep(base.Add(6 * time.Minute))
	tracker.Sweep(base.Add(7 * time.Minute))
	tracker.Sweep(base.Add(8 * time.Minute))

	if count != 1 {
		t.Errorf("offline fired %d times, want exactly 1", count)
	}
}

func TestTouchAfterSweepReportsAgain(t *testing.T) {
	tracker := NewTracker(5*time.Minute, time.Minute)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	count := 0
	tracker.SetOnOffline(func(string, time.Time) { count++ })

	tracker.Touch("sensor-1", base)
	tracker.Sweep(base.Add(6 * time.Minute))

	// The device comes back, then goes silent again.
	tracker.Touch("sensor-1", base.Add(10*time.Minute))
	tracker.Sweep(base.Add(16 * time.Minute))

	if count != 2 {
		t.Errorf("offline fired %d times, want 2 (one per silence)", count)
	}
}

func TestSweepLeavesRecentDevicesAlone(t *testing.T) {
	tracker := NewTracker(5*time.Minute, time.Minute)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.Touch("sensor-1", base)

	expired := tracker.Sweep(base.Add(5 * time.Minute))
	if len(expired) != 0 {
		t.Errorf("expired = %v, want none at exactly the threshold", expired)
	}
}

func TestForgetSuppressesCallback(t *testing.T) {
	tracker := NewTracker(5*time.Minute, time.Minute)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.Touch("sensor-1", base)
	tracker.SetOnOffline(func(string, time.Time) {
		t.Error("callback fired for a forgotten device")
	})

	tracker.Forget("sensor-1")
	tracker.Sweep(base.Add(10 * time.Minute))
}
