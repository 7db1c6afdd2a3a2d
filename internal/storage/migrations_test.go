package storage

import (
	"context"
	"testing"
)

func TestMigrations_CreateExpectedIndexes(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	indexes := []string{
		"idx_import_batches_status_started",
		"idx_sessions_daily_import_date",
		"idx_events_daily_import_date",
		"idx_conversions_daily_import_date",
		"idx_campaigns_import",
		"idx_benchmarks_import",
	}
	for _, name := range indexes {
		var count int
		err := store.db.QueryRow(`
			SELECT COUNT(*) FROM sqlite_master
			WHERE type='index' AND name=?
		`, name).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to check index %s: %v", name, err)
		}
		if count != 1 {
			t.Errorf("Index %s was not created", name)
		}
	}

	// Superseded single-column indexes are gone.
	var count int
	if err := store.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_sessions_daily_import'
	`).Scan(&count); err != nil {
		t.Fatalf("Failed to check index: %v", err)
	}
	if count != 0 {
		t.Error("idx_sessions_daily_import should have been dropped")
	}
}

func TestMigrations_ForeignKeysEnabled(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	var enabled int
	if err := store.db.QueryRowContext(context.Background(), "PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("Failed to read foreign_keys pragma: %v", err)
	}
	if enabled != 1 {
		t.Errorf("foreign keys are off; cascading deletes would leave orphan rows")
	}
}

func TestMigrations_VersionsAreSequential(t *testing.T) {
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration at index %d has version %d", i, m.Version)
		}
		if m.Description == "" {
			t.Errorf("migration %d has no description", m.Version)
		}
	}
	if migrations[len(migrations)-1].Version != ExpectedSchemaVersion {
		t.Errorf("ExpectedSchemaVersion %d does not match the last migration", ExpectedSchemaVersion)
	}
}
