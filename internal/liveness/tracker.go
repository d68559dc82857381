// Package liveness detects silent devices.
//
// Every inbound message touches its device's entry in the tracker. A
// periodic sweep compares entries against the offline threshold and
// fires the OnOffline callback exactly once per silence: the swept
// entry is removed, so the device cannot be reported offline again
// until a new message re-adds it.
package liveness

import (
	"context"
	"sync"
	"time"
)

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Tracker keeps a last-heard timestamp per device and sweeps for
// devices that have gone quiet.
//
// Thread Safety: all methods are safe for concurrent use. Touch is on
// the ingestion hot path and takes no lock beyond sync.Map's own.
type Tracker struct {
	// lastSeen maps device ID to the time.Time of its last message.
	lastSeen sync.Map

	threshold time.Duration
	interval  time.Duration

	// onOffline is invoked once per device per detected silence.
	onOffline func(deviceID string, lastSeen time.Time)

	logger Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker's logger.
func WithLogger(l Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates a tracker. threshold is how long a device may stay
// silent before it is considered offline; interval is how often the
// sweep runs.
func NewTracker(threshold, interval time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		threshold: threshold,
		interval:  interval,
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetOnOffline registers the callback fired when a sweep finds a silent
// device. Must be called before Run.
func (t *Tracker) SetOnOffline(fn func(deviceID string, lastSeen time.Time)) {
	t.onOffline = fn
}

// Touch records that a message arrived from the device.
func (t *Tracker) Touch(deviceID string, at time.Time) {
	t.lastSeen.Store(deviceID, at.UTC())
}

// Forget drops a device from tracking without firing the callback.
// Used when a device reports itself offline via its status topic.
func (t *Tracker) Forget(deviceID string) {
	t.lastSeen.Delete(deviceID)
}

// Tracked returns the number of devices currently being tracked.
func (t *Tracker) Tracked() int {
	n := 0
	t.lastSeen.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sweep finds every device whose last message is older than the
// threshold relative to now, removes it from tracking, and returns the
// affected device IDs. Removal before callback guarantees exactly one
// offline report per silence.
func (t *Tracker) Sweep(now time.Time) []string {
	cutoff := now.Add(-t.threshold)

	var expired []string
	t.lastSeen.Range(func(key, value any) bool {
		deviceID := key.(string)
		seen := value.(time.Time)
		if seen.Before(cutoff) {
			// CompareAndDelete so a Touch racing the sweep wins and the
			// device stays tracked.
			if t.lastSeen.CompareAndDelete(key, value) {
				expired = append(expired, deviceID)
				if t.onOffline != nil {
					t.onOffline(deviceID, seen)
				}
			}
		}
		return true
	})

	if len(expired) > 0 {
		t.logger.Info("liveness sweep marked devices offline", "count", len(expired))
	}

	return expired
}

// Run sweeps on the configured interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Debug("liveness sweep started",
		"interval", t.interval.String(), "threshold", t.threshold.String())

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug("liveness sweep stopped")
			return
		case now := <-ticker.C:
			t.Sweep(now)
		}
	}
}
