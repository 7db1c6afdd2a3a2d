// Package testutil provides shared helpers for tests that need a real database
// or realistic import inputs.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/storage"
	"github.com/google/uuid"
)

// TestDB is a migrated in-memory database bound to one test.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database. Migrations run and
// cleanup is registered automatically.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	batch := db.SeedImport("user-1", testutil.SampleRecordSet())
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, service.Storage) error
	Path           string // file to open instead of an in-memory database
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	path := opts.Path
	if path == "" {
		path = ":memory:"
	}
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	ctx := context.Background()

	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// WithImportTx runs fn inside an import transaction that is always rolled back.
// No other storage call may run while fn executes.
func (db *TestDB) WithImportTx(fn func(tx service.ImportTx) error) error {
	ctx := context.Background()
	tx, err := db.Storage.BeginImport(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

// SeedImport commits set as one COMPLETED batch for userID's upload source and
// returns the batch. expected overrides the declared count when non-negative.
func (db *TestDB) SeedImport(userID string, set *model.RecordSet, expected ...int) *model.ImportBatch {
	db.t.Helper()
	ctx := context.Background()

	source, err := db.Storage.UpsertSource(ctx, userID, model.ProviderUpload, "")
	if err != nil {
		db.t.Fatalf("failed to upsert source: %v", err)
	}

	count := set.Total()
	if len(expected) > 0 && expected[0] >= 0 {
		count = expected[0]
	}
	batch := &model.ImportBatch{
		ID:            "seed-" + uuid.NewString(),
		SourceID:      source.ID,
		RecordType:    set.DeclaredType(),
		Status:        model.StatusProcessing,
		StartedAt:     time.Now().UTC(),
		ExpectedCount: count,
	}

	tx, err := db.Storage.BeginImport(ctx)
	if err != nil {
		db.t.Fatalf("failed to begin import: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	steps := []func() error{
		func() error { return tx.CreateBatch(ctx, batch) },
		func() error { return insertNonEmpty(ctx, tx, batch.ID, set) },
		func() error {
			return tx.CompleteBatch(ctx, service.BatchCompletion{
				ImportID:      batch.ID,
				Status:        model.StatusCompleted,
				CompletedAt:   time.Now().UTC(),
				ExpectedCount: count,
			})
		},
		tx.Commit,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			db.t.Fatalf("failed to seed import: %v", err)
		}
	}

	stored, err := db.Storage.GetImportBatch(ctx, batch.ID)
	if err != nil {
		db.t.Fatalf("failed to reload seeded batch: %v", err)
	}
	return stored
}

func insertNonEmpty(ctx context.Context, tx service.ImportTx, id string, set *model.RecordSet) error {
	if len(set.Sessions) > 0 {
		if err := tx.InsertSessions(ctx, id, set.Sessions); err != nil {
			return err
		}
	}
	if len(set.Events) > 0 {
		if err := tx.InsertEvents(ctx, id, set.Events); err != nil {
			return err
		}
	}
	if len(set.Conversions) > 0 {
		if err := tx.InsertConversions(ctx, id, set.Conversions); err != nil {
			return err
		}
	}
	if len(set.Campaigns) > 0 {
		if err := tx.InsertCampaigns(ctx, id, set.Campaigns); err != nil {
			return err
		}
	}
	if len(set.Benchmarks) > 0 {
		if err := tx.InsertBenchmarks(ctx, id, set.Benchmarks); err != nil {
			return err
		}
	}
	return nil
}
