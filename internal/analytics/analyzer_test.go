package analytics

import (
	"context"
	"testing"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	batches map[string]*model.ImportBatch
	sets    map[string]*model.RecordSet
}

func (f *fakeReader) GetImportBatch(_ context.Context, id string) (*model.ImportBatch, error) {
	b, ok := f.batches[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return b, nil
}

func (f *fakeReader) GetRecordSet(_ context.Context, importID string) (*model.RecordSet, error) {
	if s, ok := f.sets[importID]; ok {
		return s, nil
	}
	return &model.RecordSet{}, nil
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		batches: map[string]*model.ImportBatch{
			"done":    {ID: "done", Status: model.StatusCompleted},
			"empty":   {ID: "empty", Status: model.StatusCompleted},
			"running": {ID: "running", Status: model.StatusProcessing},
		},
		sets: map[string]*model.RecordSet{
			"done": {
				Sessions: []model.SessionRecord{
					{Date: day("2024-01-02"), Sessions: 120, Users: 95, Conversions: 8},
					{Date: day("2024-01-01"), Sessions: 100, Users: 80, Conversions: 5},
				},
				Events: []model.EventRecord{
					{Date: day("2023-12-30"), EventName: "page_view", SessionsWithEvent: 5, EventCount: 6},
				},
				Campaigns: []model.CampaignRecord{
					{Campaign: "Spring", StartDate: day("2024-01-01"), EndDate: day("2024-01-31")},
				},
			},
		},
	}
}

func TestAnalyzer_Analyze(t *testing.T) {
	a := NewAnalyzer(newFakeReader(), nil, 0)

	report, err := a.Analyze(context.Background(), "done")
	require.NoError(t, err)

	assert.Equal(t, "done", report.ImportID)
	assert.Equal(t, int64(220), report.Metrics.TotalSessions)
	assert.InDelta(t, 5.909, report.Metrics.ConversionRate, 0.001)
	assert.Equal(t, model.DateRange{Start: "2023-12-30", End: "2024-01-02"}, report.DateRange)
	assert.Equal(t, 2, report.DataPoints[model.RecordTypeSessions])
	assert.Equal(t, 1, report.DataPoints[model.RecordTypeEvents])
	assert.Equal(t, 0, report.DataPoints[model.RecordTypeBenchmarks])
	assert.Equal(t, DefaultWindowDays, report.Trends.WindowDays)
	require.Len(t, report.Metrics.CampaignPerformance, 1)
	assert.Equal(t, int64(220), report.Metrics.CampaignPerformance[0].Sessions)
}

func TestAnalyzer_Errors(t *testing.T) {
	a := NewAnalyzer(newFakeReader(), NewCalculator(0.1), 7)

	tests := []struct {
		want error
		name string
		id   string
	}{
		{name: "unknown import", id: "nope", want: common.ErrNotFound},
		{name: "no rows", id: "empty", want: common.ErrNotFound},
		{name: "not completed", id: "running", want: common.ErrBatchNotReady},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := a.Analyze(context.Background(), tt.id)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, report)
		})
	}
}

func TestDateRange_CampaignOnly(t *testing.T) {
	set := &model.RecordSet{Campaigns: []model.CampaignRecord{
		{Campaign: "A", StartDate: day("2024-03-01"), EndDate: day("2024-03-31")},
		{Campaign: "B", StartDate: day("2024-02-01"), EndDate: day("2024-02-10")},
	}}
	assert.Equal(t, model.DateRange{Start: "2024-02-01", End: "2024-03-31"}, dateRange(set))
	assert.Equal(t, model.DateRange{}, dateRange(&model.RecordSet{}))
}
