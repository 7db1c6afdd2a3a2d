// Package ingest runs imports: parse, validate, then persist atomically.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/google/uuid"
)

// DefaultTimeout bounds one import transaction.
const DefaultTimeout = 30 * time.Second

// Transaction steps, reported in TransactionFailureError.
const (
	StepBegin             = "begin"
	StepCreateBatch       = "create_batch"
	StepInsertSessions    = "insert_sessions"
	StepInsertEvents      = "insert_events"
	StepInsertConversions = "insert_conversions"
	StepInsertCampaigns   = "insert_campaigns"
	StepInsertBenchmarks  = "insert_benchmarks"
	StepCompleteBatch     = "complete_batch"
	StepCommit            = "commit"
)

// ImportStore opens import transactions.
type ImportStore interface {
	BeginImport(ctx context.Context) (service.ImportTx, error)
}

// TransactionTimeoutError means the import hit its deadline and was rolled
// back. Retrying the same input is safe.
type TransactionTimeoutError struct {
	Err     error
	Step    string
	Timeout time.Duration
}

func (e *TransactionTimeoutError) Error() string {
	return fmt.Sprintf("import timed out after %s during %s: %v", e.Timeout, e.Step, e.Err)
}

func (e *TransactionTimeoutError) Unwrap() error {
	return e.Err
}

// TransactionFailureError means a step failed and the import was rolled back.
type TransactionFailureError struct {
	Err  error
	Step string
}

func (e *TransactionFailureError) Error() string {
	return fmt.Sprintf("import failed during %s: %v", e.Step, e.Err)
}

func (e *TransactionFailureError) Unwrap() error {
	return e.Err
}

// Descriptor identifies what is being imported.
type Descriptor struct {
	Metadata model.BatchMetadata
	ID       string // generated when empty
	SourceID string
}

// Importer writes one record set and its batch in a single transaction.
type Importer struct {
	store   ImportStore
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
	timeout time.Duration
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) ImporterOption {
	return func(im *Importer) {
		if d > 0 {
			im.timeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ImporterOption {
	return func(im *Importer) { im.now = now }
}

// WithLogger sets the importer's logger.
func WithLogger(logger *slog.Logger) ImporterOption {
	return func(im *Importer) {
		if logger != nil {
			im.logger = logger
		}
	}
}

// NewImporter creates an importer over store.
func NewImporter(store ImportStore, opts ...ImporterOption) *Importer {
	im := &Importer{
		store:   store,
		logger:  slog.Default().With("component", "importer"),
		now:     time.Now,
		newID:   uuid.NewString,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Timeout reports the transaction deadline in use.
func (im *Importer) Timeout() time.Duration {
	return im.timeout
}

// Import persists set as one COMPLETED batch. Either every row and the
// batch are committed or nothing is.
func (im *Importer) Import(ctx context.Context, desc Descriptor, set *model.RecordSet) (*model.ImportBatch, error) {
	if set == nil || set.IsEmpty() {
		return nil, &TransactionFailureError{Step: StepCreateBatch, Err: common.ErrEmptyImport}
	}

	ctx, cancel := context.WithTimeout(ctx, im.timeout)
	defer cancel()

	id := desc.ID
	if id == "" {
		id = im.newID()
	}
	batch := &model.ImportBatch{
		ID:            id,
		SourceID:      desc.SourceID,
		RecordType:    set.DeclaredType(),
		Status:        model.StatusProcessing,
		StartedAt:     im.now().UTC(),
		Metadata:      desc.Metadata,
		ExpectedCount: set.Total(),
	}

	start := time.Now()
	tx, err := im.store.BeginImport(ctx)
	if err != nil {
		return nil, im.classify(ctx, StepBegin, err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				im.logger.Debug("rollback after failed import", "import_id", id, "error", rbErr)
			}
		}
	}()

	if err := tx.CreateBatch(ctx, batch); err != nil {
		return nil, im.classify(ctx, StepCreateBatch, err)
	}

	steps := []struct {
		name string
		run  func() error
		n    int
	}{
		{StepInsertSessions, func() error { return tx.InsertSessions(ctx, id, set.Sessions) }, len(set.Sessions)},
		{StepInsertEvents, func() error { return tx.InsertEvents(ctx, id, set.Events) }, len(set.Events)},
		{StepInsertConversions, func() error { return tx.InsertConversions(ctx, id, set.Conversions) }, len(set.Conversions)},
		{StepInsertCampaigns, func() error { return tx.InsertCampaigns(ctx, id, set.Campaigns) }, len(set.Campaigns)},
		{StepInsertBenchmarks, func() error { return tx.InsertBenchmarks(ctx, id, set.Benchmarks) }, len(set.Benchmarks)},
	}
	for _, step := range steps {
		if step.n == 0 {
			continue
		}
		if err := step.run(); err != nil {
			return nil, im.classify(ctx, step.name, err)
		}
	}

	completedAt := im.now().UTC()
	completion := service.BatchCompletion{
		ImportID:      id,
		Status:        model.StatusCompleted,
		CompletedAt:   completedAt,
		Metadata:      desc.Metadata,
		ExpectedCount: set.Total(),
	}
	if err := tx.CompleteBatch(ctx, completion); err != nil {
		return nil, im.classify(ctx, StepCompleteBatch, err)
	}

	// A deadline that passed during the last step still fails the import.
	if ctx.Err() != nil {
		return nil, im.classify(ctx, StepCommit, ctx.Err())
	}
	if err := tx.Commit(); err != nil {
		return nil, im.classify(ctx, StepCommit, err)
	}
	committed = true

	batch.Status = model.StatusCompleted
	batch.CompletedAt = &completedAt
	im.logger.Info("import committed",
		"import_id", id,
		"source_id", desc.SourceID,
		"record_type", batch.RecordType,
		"records", batch.ExpectedCount,
		"duration", time.Since(start))
	return batch, nil
}

// classify turns a step failure into a timeout or failure error.
func (im *Importer) classify(ctx context.Context, step string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if !errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(context.DeadlineExceeded, err)
		}
		im.logger.Warn("import timed out", "step", step, "timeout", im.timeout, "error", err)
		return &TransactionTimeoutError{Err: err, Step: step, Timeout: im.timeout}
	}
	im.logger.Error("import failed", "step", step, "error", err)
	return &TransactionFailureError{Err: err, Step: step}
}
