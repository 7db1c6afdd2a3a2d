// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/tally/internal/model"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Source operations
	UpsertSource(ctx context.Context, userID string, provider model.Provider, externalRef string) (*model.Source, error)
	GetSource(ctx context.Context, id string) (*model.Source, error)
	MarkSourceSynced(ctx context.Context, id string, at time.Time) error

	// Import batch operations
	GetImportBatch(ctx context.Context, id string) (*model.ImportBatch, error)
	ListImportBatches(ctx context.Context, filter model.BatchFilter) ([]model.ImportBatch, error)
	DeleteImportBatch(ctx context.Context, id string) error

	// Leaf record operations
	GetRecordSet(ctx context.Context, importID string) (*model.RecordSet, error)
	CountRecords(ctx context.Context, importID string, recordType model.RecordType) (int, error)

	// Database management
	Migrate(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
	BeginImport(ctx context.Context) (ImportTx, error)
	Close() error
}

// ImportTx is the write side of a single import. Every call runs inside one
// database transaction; nothing is visible until Commit.
type ImportTx interface {
	CreateBatch(ctx context.Context, batch *model.ImportBatch) error
	InsertSessions(ctx context.Context, importID string, records []model.SessionRecord) error
	InsertEvents(ctx context.Context, importID string, records []model.EventRecord) error
	InsertConversions(ctx context.Context, importID string, records []model.ConversionRecord) error
	InsertCampaigns(ctx context.Context, importID string, records []model.CampaignRecord) error
	InsertBenchmarks(ctx context.Context, importID string, records []model.BenchmarkRecord) error
	CompleteBatch(ctx context.Context, completion BatchCompletion) error
	Commit() error
	Rollback() error
}

// BatchCompletion carries the terminal state written at the end of an import.
type BatchCompletion struct {
	CompletedAt   time.Time
	ImportID      string
	Status        model.ImportStatus
	Metadata      model.BatchMetadata
	ExpectedCount int
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
