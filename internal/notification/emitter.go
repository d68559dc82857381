package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Broadcaster pushes freshly emitted notifications to live subscribers.
type Broadcaster interface {
	NotificationCreated(n *Notification)
}

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// Emitter creates notifications on behalf of other subsystems.
//
// Emit never returns an error: notification storage problems are logged
// and swallowed, because the triggering operation (command failure
// handling, rule firing, liveness sweep) must not be derailed by them.
type Emitter struct {
	repo        Repository
	broadcaster Broadcaster
	logger      Logger
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithBroadcaster wires the live-subscriber broadcast.
func WithBroadcaster(b Broadcaster) EmitterOption {
	return func(e *Emitter) { e.broadcaster = b }
}

// WithLogger sets the emitter's logger.
func WithLogger(l Logger) EmitterOption {
	return func(e *Emitter) { e.logger = l }
}

// NewEmitter creates an emitter writing through the given repository.
func NewEmitter(repo Repository, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		repo:   repo,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit records a notification. Any of farmID, roomID, deviceID may be
// empty and is then stored as NULL.
func (e *Emitter) Emit(ctx context.Context, level Level, message string, farmID, roomID, deviceID string) {
	n := &Notification{
		ID:        uuid.NewString(),
		FarmID:    optional(farmID),
		RoomID:    optional(roomID),
		DeviceID:  optional(deviceID),
		Level:     level,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	if err := e.repo.Insert(ctx, n); err != nil {
		e.logger.Error("failed to record notification",
			"level", string(level), "message", message, "error", err)
		return
	}

	if e.broadcaster != nil {
		e.broadcaster.NotificationCreated(n)
	}
}

// Critical emits a critical notification.
func (e *Emitter) Critical(ctx context.Context, message string, farmID, roomID, deviceID string) {
	e.Emit(ctx, LevelCritical, message, farmID, roomID, deviceID)
}

// Warning emits a warning notification.
func (e *Emitter) Warning(ctx context.Context, message string, farmID, roomID, deviceID string) {
	e.Emit(ctx, LevelWarning, message, farmID, roomID, deviceID)
}

// Info emits an info notification.
func (e *Emitter) Info(ctx context.Context, message string, farmID, roomID, deviceID string) {
	e.Emit(ctx, LevelInfo, message, farmID, roomID, deviceID)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
