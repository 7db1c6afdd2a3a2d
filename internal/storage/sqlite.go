package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// queryable is satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection makes every import transaction a true serialization
	// point and keeps :memory: databases shared across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginImport starts the transaction that carries one whole import.
func (s *SQLiteStorage) BeginImport(ctx context.Context) (service.ImportTx, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &importTx{tx: tx}, nil
}

// importTx wraps sql.Tx to implement service.ImportTx.
type importTx struct {
	tx *sql.Tx
}

func (t *importTx) Commit() error {
	return t.tx.Commit()
}

func (t *importTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *importTx) CreateBatch(ctx context.Context, batch *model.ImportBatch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateBatch(batch); err != nil {
		return err
	}
	return createBatchTx(ctx, t.tx, batch)
}

func (t *importTx) InsertSessions(ctx context.Context, importID string, records []model.SessionRecord) error {
	if err := validateInsert(ctx, importID, len(records)); err != nil {
		return err
	}
	return insertSessionsTx(ctx, t.tx, importID, records)
}

func (t *importTx) InsertEvents(ctx context.Context, importID string, records []model.EventRecord) error {
	if err := validateInsert(ctx, importID, len(records)); err != nil {
		return err
	}
	return insertEventsTx(ctx, t.tx, importID, records)
}

func (t *importTx) InsertConversions(ctx context.Context, importID string, records []model.ConversionRecord) error {
	if err := validateInsert(ctx, importID, len(records)); err != nil {
		return err
	}
	return insertConversionsTx(ctx, t.tx, importID, records)
}

func (t *importTx) InsertCampaigns(ctx context.Context, importID string, records []model.CampaignRecord) error {
	if err := validateInsert(ctx, importID, len(records)); err != nil {
		return err
	}
	return insertCampaignsTx(ctx, t.tx, importID, records)
}

func (t *importTx) InsertBenchmarks(ctx context.Context, importID string, records []model.BenchmarkRecord) error {
	if err := validateInsert(ctx, importID, len(records)); err != nil {
		return err
	}
	return insertBenchmarksTx(ctx, t.tx, importID, records)
}

func (t *importTx) CompleteBatch(ctx context.Context, completion service.BatchCompletion) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(completion.ImportID, "importID"); err != nil {
		return err
	}
	return completeBatchTx(ctx, t.tx, completion)
}
