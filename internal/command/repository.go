package command

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for command persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Insert stores a new command.
	Insert(ctx context.Context, c *Command) error

	// GetByID retrieves a command by ID.
	// Returns ErrCommandNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Command, error)

	// ListByDevice retrieves a device's commands newest first.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]Command, error)

	// UpdateStatus transitions a command's status, guarded so only the
	// expected current status is overwritten. Returns
	// ErrInvalidTransition when the command is in any other state, or
	// ErrCommandNotFound when it does not exist.
	UpdateStatus(ctx context.Context, id string, from, to Status, message *string) error
}

const commandColumns = `
	command_id, device_id, room_id, farm_id, command, params,
	issued_by, issued_at, status, status_message`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert stores a new command.
func (r *SQLiteRepository) Insert(ctx context.Context, c *Command) error {
	var paramsJSON any
	if c.Params != nil {
		data, err := json.Marshal(c.Params)
		if err != nil {
			return fmt.Errorf("marshalling params: %w", err)
		}
		paramsJSON = string(data)
	}

	query := `
		INSERT INTO commands (` + commandColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.DeviceID, c.RoomID, c.FarmID, c.Command, paramsJSON,
		nullable(c.IssuedBy), c.IssuedAt.UTC().Format(time.RFC3339),
		string(c.Status), c.StatusMessage,
	)
	if err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	return nil
}

// GetByID retrieves a command by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Command, error) {
	query := `SELECT ` + commandColumns + ` FROM commands WHERE command_id = ?`

	c, err := scanCommand(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCommandNotFound
		}
		return nil, fmt.Errorf("querying command: %w", err)
	}
	return c, nil
}

// ListByDevice retrieves a device's commands newest first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Command, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + commandColumns + `
		FROM commands
		WHERE device_id = ?
		ORDER BY issued_at DESC, command_id DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	var commands []Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		commands = append(commands, *c)
	}

	return commands, rows.Err()
}

// UpdateStatus transitions a command's status with a compare-and-set on
// the current status. The guard in the WHERE clause is what enforces
// monotonic transitions under concurrent acks.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, from, to Status, message *string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE commands SET status = ?, status_message = ?
		WHERE command_id = ? AND status = ?`,
		string(to), message, id, string(from))
	if err != nil {
		return fmt.Errorf("updating command status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: command %s is not %s", ErrInvalidTransition, id, from)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCommand(s scanner) (*Command, error) {
	var (
		c        Command
		params   sql.NullString
		issuedBy sql.NullString
		issuedAt string
		status   string
	)

	err := s.Scan(&c.ID, &c.DeviceID, &c.RoomID, &c.FarmID, &c.Command, &params,
		&issuedBy, &issuedAt, &status, &c.StatusMessage)
	if err != nil {
		return nil, err
	}

	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &c.Params); err != nil {
			return nil, fmt.Errorf("unmarshalling params: %w", err)
		}
	}
	if issuedBy.Valid {
		c.IssuedBy = issuedBy.String
	}
	if t, err := time.Parse(time.RFC3339, issuedAt); err == nil {
		c.IssuedAt = t.UTC()
	}
	c.Status = Status(status)

	return &c, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
