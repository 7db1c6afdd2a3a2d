package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/analytics"
	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/ga4"
	"github.com/Veraticus/tally/internal/ingest"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/notify"
	"github.com/Veraticus/tally/internal/storage"
	"github.com/Veraticus/tally/internal/telemetry"
)

// initStorage opens the configured database and brings its schema up to date.
func initStorage(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// openApp loads configuration and storage, the pair nearly every command needs.
func openApp(ctx context.Context) (*config.Config, *storage.SQLiteStorage, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, nil, err
	}
	store, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func newDispatcher(cfg *config.Config, metrics *telemetry.Metrics) *notify.Dispatcher {
	sinks := []notify.Sink{notify.NewLogSink(slog.Default())}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret, nil, common.DefaultRetryOptions()))
	}
	return notify.NewDispatcher(notify.Config{
		Logger:     slog.Default(),
		Metrics:    metrics,
		BufferSize: cfg.Notify.BufferSize,
	}, sinks...)
}

func newIngestService(cfg *config.Config, store *storage.SQLiteStorage, publisher ingest.Publisher, metrics *telemetry.Metrics) *ingest.Service {
	importer := ingest.NewImporter(store, ingest.WithTimeout(cfg.Import.Timeout))
	return ingest.NewService(store, importer, ingest.ServiceConfig{
		Calculator: analytics.NewCalculator(cfg.Analytics.BenchmarkTolerance),
		Publisher:  publisher,
		Metrics:    metrics,
		Logger:     slog.Default(),
	})
}

func newAnalyzer(cfg *config.Config, store *storage.SQLiteStorage) *analytics.Analyzer {
	return analytics.NewAnalyzer(store, analytics.NewCalculator(cfg.Analytics.BenchmarkTolerance), cfg.Analytics.TrendWindowDays)
}

func newGA4Client(ctx context.Context, cfg *config.Config) (*ga4.Client, error) {
	clientCfg, err := cfg.GA4ClientConfig()
	if err != nil {
		return nil, err
	}
	return ga4.NewClient(ctx, clientCfg)
}

// shutdownDispatcher drains queued notifications with a bounded wait.
func shutdownDispatcher(d *notify.Dispatcher) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		slog.Warn("notifications not fully delivered", "error", err)
	}
}

// expandInputs resolves shell-style globs. A pattern with no glob characters
// is kept as is so a missing file surfaces as a read error.
func expandInputs(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range patterns {
		matches := []string{pattern}
		if strings.ContainsAny(pattern, "*?[") {
			var err error
			matches, err = filepath.Glob(pattern)
			if err != nil {
				return nil, common.NewUserError(fmt.Sprintf("invalid pattern %q", pattern), err)
			}
			if len(matches) == 0 {
				return nil, common.NewUserError(fmt.Sprintf("no files match %q", pattern), common.ErrEmptyImport)
			}
			sort.Strings(matches)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// parseDay parses a YYYY-MM-DD flag value.
func parseDay(flag, value string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, value)
	if err != nil {
		return time.Time{}, common.NewUserError(fmt.Sprintf("--%s must be YYYY-MM-DD, got %q", flag, value), err)
	}
	return t, nil
}

func formatOptionalFloat(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}

func printResult(w io.Writer, result *ingest.Result, dryRun bool) error {
	var b strings.Builder
	if dryRun {
		b.WriteString(cli.FormatInfo(fmt.Sprintf("Dry run: %d records would be imported", result.RecordCount)))
	} else {
		b.WriteString(cli.FormatSuccess(fmt.Sprintf("Imported %d records as %s", result.RecordCount, result.ImportID)))
	}
	b.WriteString("\n")
	b.WriteString(cli.RenderTable(
		[]string{"METRIC", "VALUE"},
		[][]string{
			{"sessions", fmt.Sprint(result.Metrics.TotalSessions)},
			{"users", fmt.Sprint(result.Metrics.TotalUsers)},
			{"conversion rate", fmt.Sprintf("%.2f%%", result.Metrics.ConversionRate)},
			{"revenue", formatOptionalFloat(result.Metrics.TotalRevenue, "%.2f")},
		},
	))
	b.WriteString("\n")
	for _, warning := range result.Warnings {
		b.WriteString(cli.FormatWarning(warning))
		b.WriteString("\n")
	}
	_, err := fmt.Fprint(w, b.String())
	return err
}

func batchRow(b model.ImportBatch) []string {
	completed := ""
	if b.CompletedAt != nil {
		completed = b.CompletedAt.Local().Format(time.DateTime)
	}
	return []string{
		b.ID,
		cli.FormatStatus(b.Status),
		string(b.RecordType),
		fmt.Sprint(b.ExpectedCount),
		b.Metadata.Provider,
		b.StartedAt.Local().Format(time.DateTime),
		completed,
	}
}

var batchHeaders = []string{"ID", "STATUS", "TYPE", "RECORDS", "PROVIDER", "STARTED", "COMPLETED"}
