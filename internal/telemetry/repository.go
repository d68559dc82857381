package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the interface for reading persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// InsertWithLiveness stores a reading and marks its device online
	// with last_seen set to the reading's arrival, in one transaction.
	// Either both changes land or neither does.
	InsertWithLiveness(ctx context.Context, r *Reading, seen time.Time) error

	// LatestByRoom returns the most recent reading per device in a room.
	LatestByRoom(ctx context.Context, roomID string) ([]Reading, error)

	// LatestByDevice returns the most recent reading for one device.
	// Returns ErrReadingNotFound when the device has no readings yet.
	LatestByDevice(ctx context.Context, deviceID string) (*Reading, error)

	// ListByDevice returns readings for a device recorded at or after
	// since, newest first, capped at limit.
	ListByDevice(ctx context.Context, deviceID string, since time.Time, limit int) ([]Reading, error)
}

const readingColumns = `
	reading_id, device_id, room_id, farm_id,
	temperature_c, humidity_pct, co2_ppm, light_lux, substrate_moisture, battery_v,
	recorded_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// InsertWithLiveness stores the reading and the device liveness update
// atomically. If the device row vanished between resolution and insert
// (deleted by the management backend), the foreign key fails and the
// whole transaction rolls back, which is the intended outcome.
func (r *SQLiteRepository) InsertWithLiveness(ctx context.Context, reading *Reading, seen time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sensor_readings (`+readingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reading.ID, reading.DeviceID, reading.RoomID, reading.FarmID,
		reading.TemperatureC, reading.HumidityPct, reading.CO2PPM,
		reading.LightLux, reading.SubstrateMoisture, reading.BatteryV,
		reading.RecordedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE devices SET status = 'online', last_seen = ? WHERE device_id = ?`,
		seen.UTC().Format(time.RFC3339), reading.DeviceID,
	)
	if err != nil {
		return fmt.Errorf("updating device liveness: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reading: %w", err)
	}
	return nil
}

// LatestByRoom returns the most recent reading per device in a room.
func (r *SQLiteRepository) LatestByRoom(ctx context.Context, roomID string) ([]Reading, error) {
	// Window over (device_id, recorded_at DESC); rank 1 is each device's
	// newest reading.
	query := `
		SELECT ` + readingColumns + ` FROM (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY device_id ORDER BY recorded_at DESC, reading_id DESC
			) AS rn
			FROM sensor_readings
			WHERE room_id = ?
		) WHERE rn = 1
		ORDER BY device_id`

	return r.queryReadings(ctx, query, roomID)
}

// LatestByDevice returns the most recent reading for one device.
func (r *SQLiteRepository) LatestByDevice(ctx context.Context, deviceID string) (*Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM sensor_readings
		WHERE device_id = ?
		ORDER BY recorded_at DESC, reading_id DESC
		LIMIT 1`

	readings, err := r.queryReadings(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, ErrReadingNotFound
	}
	return &readings[0], nil
}

// ListByDevice returns readings recorded at or after since, newest first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, since time.Time, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + readingColumns + `
		FROM sensor_readings
		WHERE device_id = ? AND recorded_at >= ?
		ORDER BY recorded_at DESC, reading_id DESC
		LIMIT ?`

	return r.queryReadings(ctx, query, deviceID, since.UTC().Format(time.RFC3339), limit)
}

func (r *SQLiteRepository) queryReadings(ctx context.Context, query string, args ...any) ([]Reading, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var (
			reading    Reading
			recordedAt string
		)
		err := rows.Scan(
			&reading.ID, &reading.DeviceID, &reading.RoomID, &reading.FarmID,
			&reading.TemperatureC, &reading.HumidityPct, &reading.CO2PPM,
			&reading.LightLux, &reading.SubstrateMoisture, &reading.BatteryV,
			&recordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, recordedAt); err == nil {
			reading.RecordedAt = t.UTC()
		}
		readings = append(readings, reading)
	}

	return readings, rows.Err()
}
