package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/analytics"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/notify"
	"github.com/Veraticus/tally/internal/parser"
	"github.com/Veraticus/tally/internal/telemetry"
	"github.com/Veraticus/tally/internal/testutil"
	"github.com/Veraticus/tally/internal/validate"
	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(e notify.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return true
}

func (p *recordingPublisher) Events() []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Event(nil), p.events...)
}

type fakeFetcher struct {
	err   error
	files map[string]string
	start time.Time
	end   time.Time
}

func (f *fakeFetcher) Fetch(_ context.Context, start, end time.Time) (map[string]string, error) {
	f.start, f.end = start, end
	return f.files, f.err
}

func (f *fakeFetcher) PropertyRef() string { return "properties/1234" }

type harness struct {
	db        *testutil.TestDB
	svc       *Service
	publisher *recordingPublisher
	metrics   *telemetry.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.SetupTestDB(t)
	pub := &recordingPublisher{}
	metrics := telemetry.New()
	svc := NewService(db.Storage, NewImporter(db.Storage, WithLogger(quietLogger())), ServiceConfig{
		Publisher: pub,
		Metrics:   metrics,
		Logger:    quietLogger(),
	})
	return &harness{db: db, svc: svc, publisher: pub, metrics: metrics}
}

func TestService_ImportRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.svc.Import(ctx, Request{Files: testutil.SampleFiles(), UserID: "user-1"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.ImportID)
	assert.Equal(t, 11, result.RecordCount)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, int64(220), result.Metrics.TotalSessions)
	assert.Equal(t, int64(175), result.Metrics.TotalUsers)
	assert.InDelta(t, 5.909, result.Metrics.ConversionRate, 0.001)
	require.NotNil(t, result.Metrics.TotalRevenue)
	assert.InDelta(t, 1149.97, *result.Metrics.TotalRevenue, 1e-9)

	batch, err := h.db.Storage.GetImportBatch(ctx, result.ImportID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, batch.Status)
	assert.Equal(t, "upload", batch.Metadata.Provider)
	assert.Equal(t, []string{"benchmarks.csv", "campaign_catalog.csv", "conversions_daily.csv", "events_daily.csv", "sessions_daily.csv"}, batch.Metadata.Files)

	// Analytics over the persisted rows match the snapshot computed in memory.
	report, err := analytics.NewAnalyzer(h.db.Storage, nil, 0).Analyze(ctx, result.ImportID)
	require.NoError(t, err)
	assert.Equal(t, result.Snapshot.TotalSessions, report.Metrics.TotalSessions)
	assert.Equal(t, result.Snapshot.TotalConversions, report.Metrics.TotalConversions)
	assert.InDelta(t, *result.Snapshot.TotalRevenue, *report.Metrics.TotalRevenue, 1e-9)
	assert.Equal(t, result.Snapshot.TopEvents, report.Metrics.TopEvents)
	assert.Equal(t, result.Snapshot.BenchmarkComparison, report.Metrics.BenchmarkComparison)

	source, err := h.db.Storage.GetSource(ctx, batch.SourceID)
	require.NoError(t, err)
	assert.NotNil(t, source.LastSyncedAt)

	events := h.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventImportCompleted, events[0].Type)
	assert.Equal(t, result.ImportID, events[0].ImportID)
	assert.Equal(t, 11, events[0].RecordCount)

	series, err := prom.GatherAndCount(h.metrics.Registry(), "tally_imports_total", "tally_records_ingested_total")
	require.NoError(t, err)
	assert.Equal(t, 6, series, "one completed-import series plus one per record type")
}

func TestService_ValidationBlocksPersistence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Import(ctx, Request{
		UserID: "user-1",
		Files: map[string]string{
			"sessions_daily.csv": "date,sessions\n2024-01-01,-5\n",
		},
	})
	var validationErr *validate.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, validate.CodeNegativeValue, validationErr.Issues[0].Code)

	batches, err := h.db.Storage.ListImportBatches(ctx, model.BatchFilter{})
	require.NoError(t, err)
	assert.Empty(t, batches)
	assert.Empty(t, h.publisher.Events())
}

func TestService_WarningsAreStored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.svc.Import(ctx, Request{
		UserID: "user-1",
		Files: map[string]string{
			"events_daily.csv": "date,event_name,sessions_with_event,event_count\n2024-01-01,signup,10,12\n2024-01-02,signup,10,7\n",
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "events_daily.csv:3")

	batch, err := h.db.Storage.GetImportBatch(ctx, result.ImportID)
	require.NoError(t, err)
	assert.Equal(t, result.Warnings, batch.Metadata.Warnings)
	assert.Equal(t, model.RecordTypeEvents, batch.RecordType)
}

func TestService_ParseErrorAborts(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Import(context.Background(), Request{
		UserID: "user-1",
		Files:  map[string]string{"sessions_daily.csv": "date,users\n2024-01-01,5\n"},
	})
	var parseErr *parser.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "sessions_daily.csv", parseErr.File)
}

func TestService_DryRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.svc.Import(ctx, Request{Files: testutil.SampleFiles(), UserID: "user-1", DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.ImportID)
	assert.Equal(t, 11, result.RecordCount)

	batches, err := h.db.Storage.ListImportBatches(ctx, model.BatchFilter{})
	require.NoError(t, err)
	assert.Empty(t, batches, "dry runs write nothing")
	assert.Empty(t, h.publisher.Events())
}

func TestService_RequiresUser(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Import(context.Background(), Request{Files: testutil.SampleFiles()})
	assert.ErrorIs(t, err, ErrMissingUser)

	var userErr *common.UserError
	assert.ErrorAs(t, err, &userErr)
}

func TestService_ImportFiles(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()

	var paths []string
	for label, text := range testutil.SampleFiles() {
		path := filepath.Join(dir, label)
		require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
		paths = append(paths, path)
	}

	result, err := h.svc.ImportFiles(context.Background(), "user-1", paths, false)
	require.NoError(t, err)
	assert.Equal(t, 11, result.RecordCount)

	_, err = h.svc.ImportFiles(context.Background(), "user-1", []string{filepath.Join(dir, "nope.csv")}, false)
	assert.Error(t, err)

	_, err = h.svc.ImportFiles(context.Background(), "user-1", nil, false)
	assert.ErrorIs(t, err, common.ErrEmptyImport)

	other := filepath.Join(t.TempDir(), "sessions_daily.csv")
	require.NoError(t, os.WriteFile(other, []byte(testutil.SessionsCSV), 0o600))
	_, err = h.svc.ImportFiles(context.Background(), "user-1", []string{paths[0], other, filepath.Join(dir, "sessions_daily.csv")}, false)
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)
}

func TestService_Sync(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	fetcher := &fakeFetcher{files: map[string]string{"ga4_sessions_daily.csv": testutil.SessionsCSV}}

	start, end := testutil.Day("2024-01-01"), testutil.Day("2024-01-02")
	result, err := h.svc.Sync(ctx, "user-1", fetcher, start, end)
	require.NoError(t, err)
	assert.Equal(t, start, fetcher.start)
	assert.Equal(t, end, fetcher.end)

	batch, err := h.db.Storage.GetImportBatch(ctx, result.ImportID)
	require.NoError(t, err)
	assert.Equal(t, "ga4", batch.Metadata.Provider)
	assert.Equal(t, map[string]string{"start": "2024-01-01", "end": "2024-01-02"}, batch.Metadata.Extra)

	source, err := h.db.Storage.GetSource(ctx, batch.SourceID)
	require.NoError(t, err)
	assert.Equal(t, model.ProviderGA4, source.Provider)
	assert.Equal(t, "properties/1234", source.ExternalRef)

	fetcher.err = errors.New("quota")
	_, err = h.svc.Sync(ctx, "user-1", fetcher, start, end)
	assert.ErrorContains(t, err, "quota")

	_, err = h.svc.Sync(ctx, "user-1", fetcher, end, start)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestService_ConcurrentImportsSameSource(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const n = 5
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := h.svc.Import(ctx, Request{Files: testutil.SampleFiles(), UserID: "user-1"})
			errs[i] = err
			if err == nil {
				ids[i] = result.ImportID
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		seen[ids[i]] = true
	}
	assert.Len(t, seen, n)

	batches, err := h.db.Storage.ListImportBatches(ctx, model.BatchFilter{})
	require.NoError(t, err)
	require.Len(t, batches, n)
	for _, b := range batches {
		assert.Equal(t, batches[0].SourceID, b.SourceID, "one source row per user and provider")
	}
}
