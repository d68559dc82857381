package automation

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the rules table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE automation_rules (
			rule_id          TEXT PRIMARY KEY,
			room_id          TEXT NOT NULL,
			name             TEXT NOT NULL,
			parameter        TEXT NOT NULL,
			comparator       TEXT NOT NULL,
			threshold        REAL NOT NULL,
			action_device_id TEXT NOT NULL,
			action_command   TEXT NOT NULL,
			enabled          INTEGER NOT NULL DEFAULT 1,
			created_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);
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

func storedRule(id, roomID string) *Rule {
	return &Rule{
		ID:             id,
		RoomID:         roomID,
		Name:           "high temperature",
		Parameter:      "temperature_c",
		Comparator:     CompGreater,
		Threshold:      28,
		ActionDeviceID: "fan-1",
		Action: Action{
			Command: "set_fan",
			Params:  map[string]any{"speed": "high"},
		},
		Enabled: true,
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, storedRule("rule-1", "room-1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "rule-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if got.Parameter != "temperature_c" || got.Comparator != CompGreater || got.Threshold != 28 {
		t.Errorf("condition = %s %s %v, want temperature_c > 28",
			got.Parameter, got.Comparator, got.Threshold)
	}
	if got.Action.Command != "set_fan" {
		t.Errorf("Action.Command = %q, want set_fan", got.Action.Command)
	}
	if speed, ok := got.Action.Params["speed"].(string); !ok || speed != "high" {
		t.Errorf("Action.Params = %v, want speed high", got.Action.Params)
	}
	if !got.Enabled {
		t.Error("rule should be enabled")
	}
}

func TestSQLiteRepository_Create_InvalidComparator(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)

	rule := storedRule("rule-1", "room-1")
	rule.Comparator = Comparator("!=")
	err := repo.Create(context.Background(), rule)
	if !errors.Is(err, ErrInvalidComparator) {
		t.Errorf("Create() error = %v, want ErrInvalidComparator", err)
	}
}

func TestSQLiteRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)

	_, err := repo.GetByID(context.Background(), "ghost")
	if !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("GetByID() error = %v, want ErrRuleNotFound", err)
	}
}

func TestSQLiteRepository_ListEnabledByRoom(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	r1 := storedRule("rule-1", "room-1")
	r2 := storedRule("rule-2", "room-1")
	r2.Name = "zz disabled"
	r2.Enabled = false
	r3 := storedRule("rule-3", "room-2")
	for _, r := range []*Rule{r1, r2, r3} {
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create(%s) error = %v", r.ID, err)
		}
	}

	enabled, err := repo.ListEnabledByRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("ListEnabledByRoom() error = %v", err)
	}
	if len(enabled) != 1 || enabled[0].ID != "rule-1" {
		t.Errorf("ListEnabledByRoom(room-1) = %v, want just rule-1", enabled)
	}

	all, err := repo.ListByRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("ListByRoom() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListByRoom(room-1) returned %d rules, want 2", len(all))
	}
}

func TestSQLiteRepository_SetEnabled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, storedRule("rule-1", "room-1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.SetEnabled(ctx, "rule-1", false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	got, err := repo.GetByID(ctx, "rule-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Enabled {
		t.Error("rule should be disabled")
	}

	if err := repo.SetEnabled(ctx, "ghost", true); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("SetEnabled(ghost) error = %v, want ErrRuleNotFound", err)
	}
}
