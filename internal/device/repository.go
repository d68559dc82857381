package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// ListByRoom retrieves all devices in a specific room.
	ListByRoom(ctx context.Context, roomID string) ([]Device, error)

	// ListByStatus retrieves all devices with the given liveness status.
	ListByStatus(ctx context.Context, status Status) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, d *Device) error

	// UpdateStatus updates the liveness status, and last_seen when
	// lastSeen is non-nil. Returns ErrDeviceNotFound for unknown devices.
	UpdateStatus(ctx context.Context, id string, status Status, lastSeen *time.Time) error

	// UpdateFirmware records the firmware version a device reported.
	UpdateFirmware(ctx context.Context, id string, version string) error
}

// deviceColumns is the select list shared by every read query. FarmID
// comes from the rooms join.
const deviceColumns = `
	d.device_id, d.room_id, r.farm_id, d.name, d.device_type, d.category,
	d.status, d.last_seen, d.firmware_version, d.created_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices d
		JOIN rooms r ON r.room_id = d.room_id
		WHERE d.device_id = ?`

	d, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices d
		JOIN rooms r ON r.room_id = d.room_id
		ORDER BY d.name`

	return r.queryDevices(ctx, query)
}

// ListByRoom retrieves all devices in a specific room.
func (r *SQLiteRepository) ListByRoom(ctx context.Context, roomID string) ([]Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices d
		JOIN rooms r ON r.room_id = d.room_id
		WHERE d.room_id = ?
		ORDER BY d.name`

	return r.queryDevices(ctx, query, roomID)
}

// ListByStatus retrieves all devices with the given liveness status.
func (r *SQLiteRepository) ListByStatus(ctx context.Context, status Status) ([]Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices d
		JOIN rooms r ON r.room_id = d.room_id
		WHERE d.status = ?
		ORDER BY d.name`

	return r.queryDevices(ctx, query, string(status))
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	if d.Status == "" {
		d.Status = StatusOffline
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO devices (device_id, room_id, name, device_type, category,
			status, last_seen, firmware_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.RoomID, d.Name, d.DeviceType, nullableCategory(d.Category),
		string(d.Status), nullableTime(d.LastSeen), d.FirmwareVersion,
		d.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// UpdateStatus updates the liveness status and optionally last_seen.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status Status, lastSeen *time.Time) error {
	if status != StatusOnline && status != StatusOffline {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var (
		result sql.Result
		err    error
	)
	if lastSeen != nil {
		result, err = r.db.ExecContext(ctx,
			`UPDATE devices SET status = ?, last_seen = ? WHERE device_id = ?`,
			string(status), lastSeen.UTC().Format(time.RFC3339), id)
	} else {
		result, err = r.db.ExecContext(ctx,
			`UPDATE devices SET status = ? WHERE device_id = ?`,
			string(status), id)
	}
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}

	return checkRowsAffected(result)
}

// UpdateFirmware records the firmware version a device reported.
func (r *SQLiteRepository) UpdateFirmware(ctx context.Context, id string, version string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET firmware_version = ? WHERE device_id = ?`,
		version, id)
	if err != nil {
		return fmt.Errorf("updating device firmware: %w", err)
	}

	return checkRowsAffected(result)
}

// queryDevices executes a multi-row device query and scans the results.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}

	return devices, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for shared scanning logic.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a single device row in deviceColumns order.
func scanDevice(s scanner) (*Device, error) {
	var (
		d         Device
		category  sql.NullString
		status    string
		lastSeen  sql.NullString
		createdAt string
	)

	err := s.Scan(&d.ID, &d.RoomID, &d.FarmID, &d.Name, &d.DeviceType, &category,
		&status, &lastSeen, &d.FirmwareVersion, &createdAt)
	if err != nil {
		return nil, err
	}

	if category.Valid {
		d.Category = Category(category.String)
	}
	d.Status = Status(status)
	if lastSeen.Valid {
		if t, err := time.Parse(time.RFC3339, lastSeen.String); err == nil {
			t = t.UTC()
			d.LastSeen = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		d.CreatedAt = t.UTC()
	}

	return &d, nil
}

func nullableCategory(c Category) any {
	if c == "" {
		return nil
	}
	return string(c)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// checkRowsAffected maps a zero-row update to ErrDeviceNotFound.
func checkRowsAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// isUniqueViolation detects SQLite primary key / unique constraint errors
// without binding this package to the driver's error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
