package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Veraticus/tally/internal/analytics"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/notify"
	"github.com/Veraticus/tally/internal/parser"
	"github.com/Veraticus/tally/internal/telemetry"
	"github.com/Veraticus/tally/internal/validate"
)

// ErrMissingUser is returned when a request names no user.
var ErrMissingUser = errors.New("missing user id")

// Store is the storage surface the pipeline needs.
type Store interface {
	ImportStore
	UpsertSource(ctx context.Context, userID string, provider model.Provider, externalRef string) (*model.Source, error)
	MarkSourceSynced(ctx context.Context, id string, at time.Time) error
}

// Publisher receives post-commit events. It must not block.
type Publisher interface {
	Publish(event notify.Event) bool
}

// Fetcher pulls one date range from an external provider as labeled CSV texts.
type Fetcher interface {
	Fetch(ctx context.Context, start, end time.Time) (map[string]string, error)
	PropertyRef() string
}

// Request is one import: a set of labeled texts for one user and provider.
type Request struct {
	Files       map[string]string
	Extra       map[string]string
	UserID      string
	Provider    model.Provider
	ExternalRef string
	DryRun      bool
}

// Summary is the headline subset of the snapshot returned to callers.
type Summary struct {
	TotalRevenue   *float64 `json:"totalRevenue"`
	TotalSessions  int64    `json:"totalSessions"`
	TotalUsers     int64    `json:"totalUsers"`
	ConversionRate float64  `json:"conversionRate"`
}

// Result describes a finished import.
type Result struct {
	Batch       *model.ImportBatch     `json:"-"`
	Snapshot    *model.MetricsSnapshot `json:"-"`
	ImportID    string                 `json:"importId,omitempty"`
	Warnings    []string               `json:"warnings"`
	Metrics     Summary                `json:"metrics"`
	RecordCount int                    `json:"recordCount"`
	Success     bool                   `json:"success"`
}

// ServiceConfig carries the optional collaborators of a Service.
type ServiceConfig struct {
	Parser     *parser.Parser
	Calculator *analytics.Calculator
	Publisher  Publisher
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
}

// Service runs the import pipeline. It holds no per-request state, so one
// Service may serve concurrent requests.
type Service struct {
	store     Store
	importer  *Importer
	parser    *parser.Parser
	calc      *analytics.Calculator
	publisher Publisher
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires a pipeline around store and importer.
func NewService(store Store, importer *Importer, cfg ServiceConfig) *Service {
	if cfg.Parser == nil {
		cfg.Parser = parser.NewParser()
	}
	if cfg.Calculator == nil {
		cfg.Calculator = analytics.NewCalculator(analytics.DefaultTolerance)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:     store,
		importer:  importer,
		parser:    cfg.Parser,
		calc:      cfg.Calculator,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With("component", "ingest"),
		now:       time.Now,
	}
}

// Import parses, validates and persists req. Validation warnings are returned
// in the result and stored on the batch; validation errors abort before any write.
func (s *Service) Import(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if req.UserID == "" {
		return nil, common.NewUserError("a user id is required to import", ErrMissingUser)
	}
	if req.Provider == "" {
		req.Provider = model.ProviderUpload
	}

	set, err := s.parser.ParseAll(req.Files)
	if err != nil {
		s.metrics.ObserveImport("invalid", time.Since(start))
		return nil, err
	}

	checked := validate.Validate(set)
	if !checked.IsValid {
		s.metrics.ObserveImport("invalid", time.Since(start))
		s.logger.Info("import rejected by validation",
			"user_id", req.UserID,
			"errors", len(checked.Errors),
			"warnings", len(checked.Warnings))
		return nil, checked.Err()
	}
	warnings := checked.WarningMessages()

	snapshot := s.calc.Calculate(set)
	result := &Result{
		Success:     true,
		RecordCount: set.Total(),
		Warnings:    warnings,
		Snapshot:    &snapshot,
		Metrics: Summary{
			TotalSessions:  snapshot.TotalSessions,
			TotalUsers:     snapshot.TotalUsers,
			TotalRevenue:   snapshot.TotalRevenue,
			ConversionRate: snapshot.ConversionRate,
		},
	}
	if req.DryRun {
		return result, nil
	}

	// Upserting the source row first serializes imports for the same source.
	source, err := s.store.UpsertSource(ctx, req.UserID, req.Provider, req.ExternalRef)
	if err != nil {
		s.metrics.ObserveImport("failed", time.Since(start))
		return nil, fmt.Errorf("failed to register source: %w", err)
	}

	batch, err := s.importer.Import(ctx, Descriptor{
		SourceID: source.ID,
		Metadata: model.BatchMetadata{
			Provider: string(req.Provider),
			Files:    labels(req.Files),
			Warnings: warnings,
			Extra:    req.Extra,
		},
	}, set)
	if err != nil {
		status := "failed"
		var timeoutErr *TransactionTimeoutError
		if errors.As(err, &timeoutErr) {
			status = "timeout"
		}
		s.metrics.ObserveImport(status, time.Since(start))
		return nil, err
	}

	s.metrics.ObserveImport("completed", time.Since(start))
	for recordType, n := range set.Counts() {
		s.metrics.AddRecords(string(recordType), n)
	}

	// Everything below runs after commit and cannot fail the import.
	if err := s.store.MarkSourceSynced(ctx, source.ID, s.now()); err != nil {
		s.logger.Warn("failed to mark source synced", "source_id", source.ID, "error", err)
	}
	if s.publisher != nil {
		s.publisher.Publish(notify.NewImportCompleted(batch.ID, source.ID, batch.ExpectedCount,
			snapshot.TotalSessions, snapshot.TotalRevenue, s.now().UTC()))
	}

	result.Batch = batch
	result.ImportID = batch.ID
	return result, nil
}

// ImportFiles reads files from disk and imports them as one batch, labeled
// by base name.
func (s *Service) ImportFiles(ctx context.Context, userID string, paths []string, dryRun bool) (*Result, error) {
	if len(paths) == 0 {
		return nil, common.NewUserError("no files to import", common.ErrEmptyImport)
	}
	files := make(map[string]string, len(paths))
	for _, path := range paths {
		label := filepath.Base(path)
		if _, dup := files[label]; dup {
			return nil, common.NewUserError(fmt.Sprintf("two inputs share the name %q", label), common.ErrDuplicateEntry)
		}
		data, err := os.ReadFile(path) //nolint:gosec // paths come from the operator
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		files[label] = string(data)
	}
	return s.Import(ctx, Request{
		Files:    files,
		UserID:   userID,
		Provider: model.ProviderUpload,
		DryRun:   dryRun,
	})
}

// Sync pulls [start, end] from an external provider and imports it as one batch.
func (s *Service) Sync(ctx context.Context, userID string, fetcher Fetcher, start, end time.Time) (*Result, error) {
	if end.Before(start) {
		return nil, common.NewUserError("end date is before start date", common.ErrInvalidConfig)
	}
	files, err := fetcher.Fetch(ctx, start, end)
	if err != nil {
		s.metrics.ObserveImport("failed", 0)
		return nil, fmt.Errorf("failed to fetch provider data: %w", err)
	}
	return s.Import(ctx, Request{
		Files:       files,
		UserID:      userID,
		Provider:    model.ProviderGA4,
		ExternalRef: fetcher.PropertyRef(),
		Extra: map[string]string{
			"start": start.Format(model.DateLayout),
			"end":   end.Format(model.DateLayout),
		},
	})
}

func labels(files map[string]string) []string {
	out := make([]string, 0, len(files))
	for label := range files {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}
