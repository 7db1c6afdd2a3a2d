package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func codes(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func TestValidate_CleanSet(t *testing.T) {
	set := &model.RecordSet{
		Sessions: []model.SessionRecord{
			{Date: day("2024-01-01"), Sessions: 100, Users: 80, BounceRate: 45, Conversions: 5, File: "s.csv", Line: 2},
			{Date: day("2024-01-02"), Sessions: 120, Users: 95, BounceRate: 40, Conversions: 8, File: "s.csv", Line: 3},
		},
		Benchmarks: []model.BenchmarkRecord{
			{Metric: "Conversion Rate", Target: 5, Unit: "%", File: "b.csv", Line: 2},
		},
	}

	result := Validate(set)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.NoError(t, result.Err())
}

// Scenario: one events row has fewer occurrences than sessions with the event.
func TestValidate_EventCountBelowSessionsIsWarning(t *testing.T) {
	set := &model.RecordSet{
		Events: []model.EventRecord{
			{Date: day("2024-01-01"), EventName: "signup", SessionsWithEvent: 10, EventCount: 12, File: "events_daily.csv", Line: 2},
			{Date: day("2024-01-02"), EventName: "signup", SessionsWithEvent: 10, EventCount: 7, File: "events_daily.csv", Line: 3},
		},
	}

	result := Validate(set)
	assert.True(t, result.IsValid, "a low event count never blocks the import")
	assert.Empty(t, result.Errors)
	require.Len(t, result.Warnings, 1)

	w := result.Warnings[0]
	assert.Equal(t, CodeEventCountLow, w.Code)
	assert.Equal(t, "events_daily.csv", w.File)
	assert.Equal(t, 3, w.Row)
	assert.Equal(t, "7", w.Value)
}

func TestValidate_HardErrors(t *testing.T) {
	tests := []struct {
		set       *model.RecordSet
		name      string
		wantCode  string
		wantField string
	}{
		{
			name: "negative sessions",
			set: &model.RecordSet{Sessions: []model.SessionRecord{
				{Date: day("2024-01-01"), Sessions: -1},
			}},
			wantCode:  CodeNegativeValue,
			wantField: "sessions",
		},
		{
			name: "bounce rate above 100",
			set: &model.RecordSet{Sessions: []model.SessionRecord{
				{Date: day("2024-01-01"), Sessions: 1, BounceRate: 120},
			}},
			wantCode:  CodeOutOfRange,
			wantField: "bounce_rate",
		},
		{
			name: "negative duration",
			set: &model.RecordSet{Sessions: []model.SessionRecord{
				{Date: day("2024-01-01"), Sessions: 1, AvgSessionDuration: -3},
			}},
			wantCode:  CodeNegativeValue,
			wantField: "avg_session_duration",
		},
		{
			name: "negative event count",
			set: &model.RecordSet{Events: []model.EventRecord{
				{Date: day("2024-01-01"), EventName: "click", SessionsWithEvent: -2, EventCount: 0},
			}},
			wantCode:  CodeNegativeValue,
			wantField: "sessions_with_event",
		},
		{
			name: "negative revenue",
			set: &model.RecordSet{Conversions: []model.ConversionRecord{
				{Date: day("2024-01-01"), ConversionName: "purchase", Conversions: 1,
					Revenue: decimal.NewNullDecimal(decimal.NewFromInt(-5))},
			}},
			wantCode:  CodeNegativeValue,
			wantField: "revenue",
		},
		{
			name: "campaign ends before it starts",
			set: &model.RecordSet{Campaigns: []model.CampaignRecord{
				{Campaign: "Spring", StartDate: day("2024-02-01"), EndDate: day("2024-01-01")},
			}},
			wantCode:  CodeInvalidDateRange,
			wantField: "end_date",
		},
		{
			name: "percentage benchmark out of range",
			set: &model.RecordSet{Benchmarks: []model.BenchmarkRecord{
				{Metric: "bounce rate", Target: 140},
			}},
			wantCode:  CodeOutOfRange,
			wantField: "target",
		},
		{
			name: "required cell missing",
			set: &model.RecordSet{
				Sessions:   []model.SessionRecord{{Sessions: 5, File: "s.csv", Line: 2}},
				CellIssues: []model.CellIssue{{File: "s.csv", Line: 2, Field: "date", Message: "required value is missing", Required: true, Missing: true}},
			},
			wantCode:  CodeMissingValue,
			wantField: "date",
		},
		{
			name: "required cell not numeric",
			set: &model.RecordSet{
				Sessions:   []model.SessionRecord{{Date: day("2024-01-01"), File: "s.csv", Line: 2}},
				CellIssues: []model.CellIssue{{File: "s.csv", Line: 2, Field: "sessions", Value: "lots", Message: `"lots" is not a number`, Required: true}},
			},
			wantCode:  CodeMalformedValue,
			wantField: "sessions",
		},
		{
			name:     "empty import",
			set:      &model.RecordSet{},
			wantCode: CodeEmptyImport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.set)
			assert.False(t, result.IsValid)
			require.NotEmpty(t, result.Errors)
			assert.Equal(t, tt.wantCode, result.Errors[0].Code)
			assert.Equal(t, tt.wantField, result.Errors[0].Field)
			assert.Equal(t, SeverityError, result.Errors[0].Severity)

			var validationErr *ValidationError
			require.True(t, errors.As(result.Err(), &validationErr))
			assert.Equal(t, result.Errors, validationErr.Issues)
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	set := &model.RecordSet{
		Sessions: []model.SessionRecord{
			{Date: day("2024-01-01"), Sessions: 10, File: "s.csv", Line: 2},
			{Date: day("2024-01-01"), Sessions: 12, File: "s.csv", Line: 3},
		},
		Events: []model.EventRecord{
			{Date: day("2024-01-01"), EventName: "click", SessionsWithEvent: 1, EventCount: 1, Line: 2},
			{Date: day("2024-01-01"), EventName: "click", SessionsWithEvent: 1, EventCount: 1, Line: 3},
		},
		Conversions: []model.ConversionRecord{
			{Date: day("2024-01-01"), ConversionName: "refund", Conversions: 0,
				Revenue: decimal.NewNullDecimal(decimal.NewFromInt(20)), Line: 2},
			{Date: day("2024-01-01"), ConversionName: "lead", Conversions: 0,
				Revenue: decimal.NewNullDecimal(decimal.Zero), Line: 3},
		},
		Campaigns: []model.CampaignRecord{
			{Campaign: "Spring", StartDate: day("2024-01-01"), EndDate: day("2024-01-31"), Line: 2},
			{Campaign: "spring", StartDate: day("2024-01-01"), EndDate: day("2024-01-31"), Line: 3},
		},
		Benchmarks: []model.BenchmarkRecord{
			{Metric: "Net Promoter Score", Target: 40, Line: 2},
			{Metric: "CVR", Target: 5, Line: 3},
			{Metric: "conversion-rate", Target: 6, Line: 4},
		},
		CellIssues: []model.CellIssue{
			{File: "s.csv", Line: 3, Field: "users", Value: "1.5", Message: `"1.5" is not a whole number`},
		},
		Unclassified: []string{"notes.csv"},
	}

	result := Validate(set)
	assert.True(t, result.IsValid, "warnings never block: %v", result.Errors)
	assert.ElementsMatch(t, []string{
		CodeMalformedValue,
		CodeDuplicateRow, // sessions
		CodeDuplicateRow, // events
		CodeRevenueNoConversion,
		CodeDuplicateRow, // campaigns
		CodeUnknownMetric,
		CodeDuplicateRow, // benchmarks, cvr == conversion-rate
		CodeUnclassifiedFile,
	}, codes(result.Warnings))

	messages := result.WarningMessages()
	require.Len(t, messages, len(result.Warnings))
	assert.Contains(t, messages[0], "s.csv:3")
}

func TestValidate_NilSet(t *testing.T) {
	result := Validate(nil)
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{CodeEmptyImport}, codes(result.Errors))
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Issues: []Issue{
		{File: "s.csv", Row: 4, Field: "sessions", Value: "x", Message: "not a number"},
		{Message: "second"},
	}}
	assert.Equal(t, `validation failed with 2 errors; first: s.csv:4: sessions: not a number (got "x")`, err.Error())
}
