package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestImportStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from ImportStatus
		to   ImportStatus
		want bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCompleted, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusProcessing, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusCompleted, StatusProcessing, false},
		{"DONE", StatusCompleted, false},
		{StatusPending, "DONE", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestImportStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, ImportStatus("completed").IsValid())
}

func TestRecordSet_DeclaredType(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		set  RecordSet
		want RecordType
	}{
		{
			name: "empty is mixed",
			want: RecordTypeMixed,
		},
		{
			name: "sessions only",
			set:  RecordSet{Sessions: []SessionRecord{{Date: day}, {Date: day}}},
			want: RecordTypeSessions,
		},
		{
			name: "benchmarks only",
			set:  RecordSet{Benchmarks: []BenchmarkRecord{{Metric: "sessions"}}},
			want: RecordTypeBenchmarks,
		},
		{
			name: "two categories",
			set: RecordSet{
				Events:      []EventRecord{{Date: day}},
				Conversions: []ConversionRecord{{Date: day}},
			},
			want: RecordTypeMixed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.set.DeclaredType())
		})
	}
}

func TestRecordSet_TotalAndMerge(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := RecordSet{Sessions: []SessionRecord{{Date: day}}, Unclassified: []string{"notes.csv"}}
	b := RecordSet{Events: []EventRecord{{Date: day}, {Date: day}}, Files: []FileSummary{{Label: "events.csv", Kind: "events", Rows: 2}}}

	a.Merge(b)

	assert.Equal(t, 3, a.Total())
	assert.False(t, a.IsEmpty())
	assert.Equal(t, 2, a.Counts()[RecordTypeEvents])
	assert.Equal(t, []string{"notes.csv"}, a.Unclassified)
	assert.Len(t, a.Files, 1)
	assert.True(t, RecordSet{}.IsEmpty())
}

func TestCampaignRecord_Contains(t *testing.T) {
	c := CampaignRecord{
		StartDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
	}

	assert.True(t, c.Contains(time.Date(2024, 1, 10, 23, 59, 0, 0, time.UTC)))
	assert.True(t, c.Contains(time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)))
	assert.False(t, c.Contains(time.Date(2024, 1, 9, 23, 59, 0, 0, time.UTC)))
	assert.False(t, c.Contains(time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC)))
}

func TestNormalizeMetric(t *testing.T) {
	tests := []struct {
		in     string
		want   Metric
		wantOK bool
	}{
		{"sessions", MetricSessions, true},
		{"Conversion Rate (%)", MetricConversionRate, true},
		{"  conversion rate ", MetricConversionRate, true},
		{"CVR", MetricConversionRate, true},
		{"Total-Revenue", MetricRevenue, true},
		{"Avg Session Duration", MetricAvgSessionDuration, true},
		{"ARPU", MetricRevenuePerUser, true},
		{"key events", MetricConversions, true},
		{"net promoter score", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeMetric(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordType_IsLeaf(t *testing.T) {
	for _, lt := range LeafTypes {
		assert.True(t, lt.IsLeaf(), lt)
	}
	assert.False(t, RecordTypeMixed.IsLeaf())
}
