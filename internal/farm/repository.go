package farm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for farm and room lookups.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetFarm retrieves a farm by ID.
	// Returns ErrFarmNotFound if the farm does not exist.
	GetFarm(ctx context.Context, id string) (*Farm, error)

	// GetRoom retrieves a room by ID.
	// Returns ErrRoomNotFound if the room does not exist.
	GetRoom(ctx context.Context, id string) (*Room, error)

	// ListFarms retrieves all farms.
	ListFarms(ctx context.Context) ([]Farm, error)

	// ListRooms retrieves all rooms in a farm.
	ListRooms(ctx context.Context, farmID string) ([]Room, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetFarm retrieves a farm by ID.
func (r *SQLiteRepository) GetFarm(ctx context.Context, id string) (*Farm, error) {
	query := `SELECT farm_id, name, location, created_at FROM farms WHERE farm_id = ?`

	var (
		f         Farm
		createdAt string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&f.ID, &f.Name, &f.Location, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFarmNotFound
		}
		return nil, fmt.Errorf("querying farm by id: %w", err)
	}
	f.CreatedAt = parseStoredTime(createdAt)

	return &f, nil
}

// GetRoom retrieves a room by ID.
func (r *SQLiteRepository) GetRoom(ctx context.Context, id string) (*Room, error) {
	query := `SELECT room_id, farm_id, name, stage, created_at FROM rooms WHERE room_id = ?`

	var (
		room      Room
		createdAt string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&room.ID, &room.FarmID, &room.Name, &room.Stage, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("querying room by id: %w", err)
	}
	room.CreatedAt = parseStoredTime(createdAt)

	return &room, nil
}

// ListFarms retrieves all farms ordered by name.
func (r *SQLiteRepository) ListFarms(ctx context.Context) ([]Farm, error) {
	query := `SELECT farm_id, name, location, created_at FROM farms ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying farms: %w", err)
	}
	defer rows.Close()

	var farms []Farm
	for rows.Next() {
		var (
			f         Farm
			createdAt string
		)
		if err := rows.Scan(&f.ID, &f.Name, &f.Location, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning farm: %w", err)
		}
		f.CreatedAt = parseStoredTime(createdAt)
		farms = append(farms, f)
	}

	return farms, rows.Err()
}

// ListRooms retrieves all rooms in a farm ordered by name.
func (r *SQLiteRepository) ListRooms(ctx context.Context, farmID string) ([]Room, error) {
	query := `SELECT room_id, farm_id, name, stage, created_at FROM rooms WHERE farm_id = ? ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, farmID)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var (
			room      Room
			createdAt string
		)
		if err := rows.Scan(&room.ID, &room.FarmID, &room.Name, &room.Stage, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		room.CreatedAt = parseStoredTime(createdAt)
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// parseStoredTime parses an RFC 3339 timestamp stored as TEXT.
// Malformed values yield a zero time rather than an error; stored
// timestamps are written by us or by the schema default, so this only
// guards against hand-edited databases.
func parseStoredTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
