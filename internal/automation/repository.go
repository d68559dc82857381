package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for rule persistence.
type Repository interface {
	// GetByID retrieves a rule by ID.
	// Returns ErrRuleNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Rule, error)

	// ListEnabledByRoom retrieves a room's enabled rules.
	ListEnabledByRoom(ctx context.Context, roomID string) ([]Rule, error)

	// ListByRoom retrieves all of a room's rules, enabled or not.
	ListByRoom(ctx context.Context, roomID string) ([]Rule, error)

	// Create inserts a new rule.
	Create(ctx context.Context, r *Rule) error

	// SetEnabled toggles a rule on or off.
	// Returns ErrRuleNotFound if the rule does not exist.
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

const ruleColumns = `
	rule_id, room_id, name, parameter, comparator, threshold,
	action_device_id, action_command, enabled, created_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a rule by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE rule_id = ?`

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("querying rule: %w", err)
	}
	return rule, nil
}

// ListEnabledByRoom retrieves a room's enabled rules.
func (r *SQLiteRepository) ListEnabledByRoom(ctx context.Context, roomID string) ([]Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE room_id = ? AND enabled = 1
		ORDER BY name`

	return r.queryRules(ctx, query, roomID)
}

// ListByRoom retrieves all of a room's rules.
func (r *SQLiteRepository) ListByRoom(ctx context.Context, roomID string) ([]Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE room_id = ?
		ORDER BY name`

	return r.queryRules(ctx, query, roomID)
}

// Create inserts a new rule.
func (r *SQLiteRepository) Create(ctx context.Context, rule *Rule) error {
	if _, err := rule.Comparator.Compare(0, 0); err != nil {
		return err
	}
	actionJSON, err := rule.actionJSON()
	if err != nil {
		return err
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO automation_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.RoomID, rule.Name, rule.Parameter, string(rule.Comparator),
		rule.Threshold, rule.ActionDeviceID, actionJSON, boolToInt(rule.Enabled),
		rule.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

// SetEnabled toggles a rule on or off.
func (r *SQLiteRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE automation_rules SET enabled = ? WHERE rule_id = ?`,
		boolToInt(enabled), id)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryRules(ctx context.Context, query string, args ...any) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, *rule)
	}

	return rules, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (*Rule, error) {
	var (
		rule       Rule
		comparator string
		actionJSON string
		enabled    int
		createdAt  string
	)

	err := s.Scan(&rule.ID, &rule.RoomID, &rule.Name, &rule.Parameter, &comparator,
		&rule.Threshold, &rule.ActionDeviceID, &actionJSON, &enabled, &createdAt)
	if err != nil {
		return nil, err
	}

	rule.Comparator = Comparator(comparator)
	if err := json.Unmarshal([]byte(actionJSON), &rule.Action); err != nil {
		return nil, fmt.Errorf("unmarshalling action: %w", err)
	}
	rule.Enabled = enabled != 0
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rule.CreatedAt = t.UTC()
	}

	return &rule, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
