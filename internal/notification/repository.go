package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for notification persistence.
type Repository interface {
	// Insert stores a new notification.
	Insert(ctx context.Context, n *Notification) error

	// GetByID retrieves a notification by ID.
	// Returns ErrNotificationNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Notification, error)

	// List retrieves notifications newest first, capped at limit.
	// When unackedOnly is set, acknowledged notifications are skipped.
	List(ctx context.Context, unackedOnly bool, limit int) ([]Notification, error)

	// ListByFarm retrieves a farm's notifications newest first.
	ListByFarm(ctx context.Context, farmID string, unackedOnly bool, limit int) ([]Notification, error)

	// Ack marks a notification acknowledged by the given principal.
	// Returns ErrAlreadyAcked if it was acknowledged before.
	Ack(ctx context.Context, id string, ackedBy string, at time.Time) error
}

const notificationColumns = `
	notification_id, farm_id, room_id, device_id, level, message,
	created_at, acked_at, acked_by`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert stores a new notification.
func (r *SQLiteRepository) Insert(ctx context.Context, n *Notification) error {
	switch n.Level {
	case LevelCritical, LevelWarning, LevelInfo:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLevel, n.Level)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL)`

	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.FarmID, n.RoomID, n.DeviceID, string(n.Level), n.Message,
		n.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

// GetByID retrieves a notification by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE notification_id = ?`

	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("querying notification: %w", err)
	}
	return n, nil
}

// List retrieves notifications newest first.
func (r *SQLiteRepository) List(ctx context.Context, unackedOnly bool, limit int) ([]Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications`
	if unackedOnly {
		query += ` WHERE acked_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT ?`

	return r.queryNotifications(ctx, query, normaliseLimit(limit))
}

// ListByFarm retrieves a farm's notifications newest first.
func (r *SQLiteRepository) ListByFarm(ctx context.Context, farmID string, unackedOnly bool, limit int) ([]Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE farm_id = ?`
	if unackedOnly {
		query += ` AND acked_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT ?`

	return r.queryNotifications(ctx, query, farmID, normaliseLimit(limit))
}

// Ack marks a notification acknowledged. The guard on acked_at makes the
// operation idempotent-hostile on purpose: a second ack reports
// ErrAlreadyAcked so the API can tell the caller someone beat them to it.
func (r *SQLiteRepository) Ack(ctx context.Context, id string, ackedBy string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET acked_at = ?, acked_by = ?
		WHERE notification_id = ? AND acked_at IS NULL`,
		at.UTC().Format(time.RFC3339), ackedBy, id)
	if err != nil {
		return fmt.Errorf("acknowledging notification: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish missing from already-acked.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrAlreadyAcked
	}
	return nil
}

func (r *SQLiteRepository) queryNotifications(ctx context.Context, query string, args ...any) ([]Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		notifications = append(notifications, *n)
	}

	return notifications, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(s scanner) (*Notification, error) {
	var (
		n         Notification
		level     string
		createdAt string
		ackedAt   sql.NullString
	)

	err := s.Scan(&n.ID, &n.FarmID, &n.RoomID, &n.DeviceID, &level, &n.Message,
		&createdAt, &ackedAt, &n.AckedBy)
	if err != nil {
		return nil, err
	}

	n.Level = Level(level)
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		n.CreatedAt = t.UTC()
	}
	if ackedAt.Valid {
		if t, err := time.Parse(time.RFC3339, ackedAt.String); err == nil {
			t = t.UTC()
			n.AckedAt = &t
		}
	}

	return &n, nil
}

func normaliseLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
