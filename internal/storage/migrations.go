package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS sources (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					provider TEXT NOT NULL,
					external_ref TEXT NOT NULL DEFAULT '',
					last_synced_at DATETIME,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					UNIQUE(user_id, provider)
				)`,

				`CREATE TABLE IF NOT EXISTS import_batches (
					id TEXT PRIMARY KEY,
					source_id TEXT NOT NULL,
					record_type TEXT NOT NULL,
					expected_count INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL CHECK (status IN ('PENDING', 'PROCESSING', 'COMPLETED', 'FAILED')),
					metadata TEXT NOT NULL DEFAULT '{}',
					started_at DATETIME NOT NULL,
					completed_at DATETIME,
					FOREIGN KEY (source_id) REFERENCES sources(id)
				)`,
				`CREATE INDEX idx_import_batches_source ON import_batches(source_id)`,

				`CREATE TABLE IF NOT EXISTS sessions_daily (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					import_id TEXT NOT NULL,
					date TEXT NOT NULL,
					sessions INTEGER NOT NULL,
					users INTEGER NOT NULL,
					page_views INTEGER NOT NULL,
					avg_session_duration REAL NOT NULL,
					bounce_rate REAL NOT NULL,
					conversions INTEGER NOT NULL,
					line INTEGER NOT NULL DEFAULT 0,
					FOREIGN KEY (import_id) REFERENCES import_batches(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_sessions_daily_import ON sessions_daily(import_id)`,

				`CREATE TABLE IF NOT EXISTS events_daily (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					import_id TEXT NOT NULL,
					date TEXT NOT NULL,
					event_name TEXT NOT NULL,
					sessions_with_event INTEGER NOT NULL,
					event_count INTEGER NOT NULL,
					line INTEGER NOT NULL DEFAULT 0,
					FOREIGN KEY (import_id) REFERENCES import_batches(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_events_daily_import ON events_daily(import_id)`,

				`CREATE TABLE IF NOT EXISTS conversions_daily (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					import_id TEXT NOT NULL,
					date TEXT NOT NULL,
					conversion_name TEXT NOT NULL,
					conversions INTEGER NOT NULL,
					revenue TEXT,
					line INTEGER NOT NULL DEFAULT 0,
					FOREIGN KEY (import_id) REFERENCES import_batches(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_conversions_daily_import ON conversions_daily(import_id)`,

				`CREATE TABLE IF NOT EXISTS campaigns (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					import_id TEXT NOT NULL,
					campaign TEXT NOT NULL,
					source TEXT NOT NULL DEFAULT '',
					start_date TEXT NOT NULL,
					end_date TEXT NOT NULL,
					line INTEGER NOT NULL DEFAULT 0,
					FOREIGN KEY (import_id) REFERENCES import_batches(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_campaigns_import ON campaigns(import_id)`,

				`CREATE TABLE IF NOT EXISTS benchmarks (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					import_id TEXT NOT NULL,
					metric TEXT NOT NULL,
					target REAL NOT NULL,
					unit TEXT NOT NULL DEFAULT '',
					line INTEGER NOT NULL DEFAULT 0,
					FOREIGN KEY (import_id) REFERENCES import_batches(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_benchmarks_import ON benchmarks(import_id)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Composite indexes for date-ordered reads and sweeps",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_import_batches_status_started ON import_batches(status, started_at)`,
				`CREATE INDEX IF NOT EXISTS idx_sessions_daily_import_date ON sessions_daily(import_id, date)`,
				`CREATE INDEX IF NOT EXISTS idx_events_daily_import_date ON events_daily(import_id, date)`,
				`CREATE INDEX IF NOT EXISTS idx_conversions_daily_import_date ON conversions_daily(import_id, date)`,
				// Single-column indexes are now covered by the composites.
				`DROP INDEX IF EXISTS idx_sessions_daily_import`,
				`DROP INDEX IF EXISTS idx_events_daily_import`,
				`DROP INDEX IF EXISTS idx_conversions_daily_import`,
			})
		},
	},
	{
		Version:     3,
		Description: "Keep source updated_at current",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TRIGGER IF NOT EXISTS update_sources_updated_at
				AFTER UPDATE OF external_ref, last_synced_at ON sources
				FOR EACH ROW
				WHEN NEW.updated_at = OLD.updated_at
				BEGIN
					UPDATE sources SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
				END
			`)
			return err
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the database's PRAGMA user_version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// PendingMigrations lists migrations newer than the current schema.
func (s *SQLiteStorage) PendingMigrations(ctx context.Context) ([]Migration, error) {
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return pending, nil
}
