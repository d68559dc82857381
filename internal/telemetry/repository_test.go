package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the tables the
// reading repository touches.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			device_id TEXT PRIMARY KEY,
			room_id   TEXT NOT NULL,
			name      TEXT NOT NULL,
			status    TEXT NOT NULL DEFAULT 'offline',
			last_seen TEXT
		);
		CREATE TABLE sensor_readings (
			reading_id         TEXT PRIMARY KEY,
			device_id          TEXT NOT NULL,
			room_id            TEXT NOT NULL,
			farm_id            TEXT NOT NULL,
			temperature_c      REAL,
			humidity_pct       REAL,
			co2_ppm            REAL,
			light_lux          REAL,
			substrate_moisture REAL,
			battery_v          REAL,
			recorded_at        TEXT NOT NULL
		);

		INSERT INTO devices (device_id, room_id, name) VALUES
			('sensor-1', 'room-1', 'Sensor One'),
			('sensor-2', 'room-1', 'Sensor Two');
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func testReading(id, deviceID string, temp float64, at time.Time) *Reading {
	return &Reading{
		ID:           id,
		DeviceID:     deviceID,
		RoomID:       "room-1",
		FarmID:       "farm-1",
		TemperatureC: f64(temp),
		HumidityPct:  f64(85),
		RecordedAt:   at,
	}
}

func TestInsertWithLiveness(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seen := at.Add(2 * time.Second)
	if err := repo.InsertWithLiveness(ctx, testReading("r-1", "sensor-1", 21.5, at), seen); err != nil {
		t.Fatalf("InsertWithLiveness() error = %v", err)
	}

	// Reading persisted.
	got, err := repo.LatestByDevice(ctx, "sensor-1")
	if err != nil {
		t.Fatalf("LatestByDevice() error = %v", err)
	}
	if got.TemperatureC == nil || *got.TemperatureC != 21.5 {
		t.Errorf("TemperatureC = %v, want 21.5", got.TemperatureC)
	}
	if !got.RecordedAt.Equal(at) {
		t.Errorf("RecordedAt = %v, want %v", got.RecordedAt, at)
	}

	// Liveness landed in the same transaction.
	var status, lastSeen string
	err = db.QueryRow(`SELECT status, last_seen FROM devices WHERE device_id = 'sensor-1'`).
		Scan(&status, &lastSeen)
	if err != nil {
		t.Fatalf("querying device: %v", err)
	}
	if status != "online" {
		t.Errorf("device status = %q, want online", status)
	}
	if lastSeen != seen.Format(time.RFC3339) {
		t.Errorf("last_seen = %q, want %q", lastSeen, seen.Format(time.RFC3339))
	}
}

func TestLatestByDevice_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)

	_, err := repo.LatestByDevice(context.Background(), "sensor-1")
	if !errors.Is(err, ErrReadingNotFound) {
		t.Errorf("LatestByDevice() error = %v, want ErrReadingNotFound", err)
	}
}

func TestLatestByRoom(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inserts := []*Reading{
		testReading("r-1", "sensor-1", 20.0, base),
		testReading("r-2", "sensor-1", 21.0, base.Add(time.Minute)),
		testReading("r-3", "sensor-2", 19.0, base.Add(30*time.Second)),
	}
	for _, reading := range inserts {
		if err := repo.InsertWithLiveness(ctx, reading, reading.RecordedAt); err != nil {
			t.Fatalf("InsertWithLiveness(%s) error = %v", reading.ID, err)
		}
	}

	latest, err := repo.LatestByRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("LatestByRoom() error = %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("LatestByRoom() returned %d readings, want one per device", len(latest))
	}

	byDevice := map[string]Reading{}
	for _, reading := range latest {
		byDevice[reading.DeviceID] = reading
	}
	if got := byDevice["sensor-1"]; got.ID != "r-2" {
		t.Errorf("latest for sensor-1 = %s, want r-2", got.ID)
	}
	if got := byDevice["sensor-2"]; got.ID != "r-3" {
		t.Errorf("latest for sensor-2 = %s, want r-3", got.ID)
	}
}

func TestListByDevice(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"r-1", "r-2", "r-3"} {
		reading := testReading(id, "sensor-1", 20.0+float64(i), base.Add(time.Duration(i)*time.Minute))
		if err := repo.InsertWithLiveness(ctx, reading, reading.RecordedAt); err != nil {
			t.Fatalf("InsertWithLiveness(%s) error = %v", id, err)
		}
	}

	// since filters out the oldest reading; results come newest first.
	readings, err := repo.ListByDevice(ctx, "sensor-1", base.Add(time.Minute), 0)
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("ListByDevice() returned %d readings, want 2", len(readings))
	}
	if readings[0].ID != "r-3" || readings[1].ID != "r-2" {
		t.Errorf("order = [%s %s], want [r-3 r-2]", readings[0].ID, readings[1].ID)
	}

	// limit caps the result set.
	readings, err = repo.ListByDevice(ctx, "sensor-1", base, 1)
	if err != nil {
		t.Fatalf("ListByDevice(limit) error = %v", err)
	}
	if len(readings) != 1 || readings[0].ID != "r-3" {
		t.Errorf("ListByDevice(limit=1) = %v, want just r-3", readings)
	}
}
