package parser

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		label string
		want  Kind
	}{
		{"sessions_daily.csv", KindSessions},
		{"GA4 Sessions Daily.csv", KindSessions},
		{"acme-events-daily-2024.csv", KindEvents},
		{"conversions_daily.csv", KindConversions},
		{"campaign_catalog.csv", KindCampaigns},
		{"Q1 benchmarks.csv", KindBenchmarks},
		{"traffic.csv", KindGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultClassifier(tt.label))
		})
	}
}

func TestParse_Sessions(t *testing.T) {
	text := "\ufeffDate,Sessions,Users,Pageviews,Avg Session Duration,Bounce Rate,Conversions\n" +
		"2024-01-01,100,80,\"1,250\",61.5,45.2%,5\n" +
		"\n" +
		"20240102,120,95,300,70,40,8\n"

	f, err := Parse("sessions_daily.csv", text)
	require.NoError(t, err)
	assert.Equal(t, KindSessions, f.Kind)
	require.Len(t, f.Records.Sessions, 2)

	first := f.Records.Sessions[0]
	assert.Equal(t, date("2024-01-01"), first.Date)
	assert.Equal(t, int64(100), first.Sessions)
	assert.Equal(t, int64(1250), first.PageViews)
	assert.InDelta(t, 45.2, first.BounceRate, 1e-9)
	assert.Equal(t, 2, first.Line)

	second := f.Records.Sessions[1]
	assert.Equal(t, date("2024-01-02"), second.Date)
	assert.Equal(t, 4, second.Line, "blank rows are skipped but line numbers stay true")
	assert.Empty(t, f.Records.CellIssues)
	assert.Equal(t, []model.FileSummary{{Label: "sessions_daily.csv", Kind: "sessions_daily", Rows: 2}}, f.Records.Files)
}

func TestParse_DelimiterDetection(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"semicolon", "date;sessions\n2024-01-01;10\n"},
		{"tab", "date\tsessions\n2024-01-01\t10\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse("sessions_daily.csv", tt.text)
			require.NoError(t, err)
			require.Len(t, f.Records.Sessions, 1)
			assert.Equal(t, int64(10), f.Records.Sessions[0].Sessions)
		})
	}
}

func TestParse_MalformedCellsBecomeIssues(t *testing.T) {
	text := "date,sessions,users\n" +
		"2024-01-01,lots,80\n" +
		"not-a-date,10,\n" +
		",12,1.5\n"

	f, err := Parse("sessions_daily.csv", text)
	require.NoError(t, err, "malformed cells never fail the parse")
	require.Len(t, f.Records.Sessions, 3)

	issues := f.Records.CellIssues
	require.Len(t, issues, 4)

	assert.Equal(t, "sessions", issues[0].Field)
	assert.Equal(t, "lots", issues[0].Value)
	assert.Equal(t, 2, issues[0].Line)
	assert.True(t, issues[0].Required)

	assert.Equal(t, "date", issues[1].Field)
	assert.Equal(t, 3, issues[1].Line)

	assert.Equal(t, "date", issues[2].Field)
	assert.True(t, issues[2].Missing)
	assert.Equal(t, 4, issues[2].Line)

	assert.Equal(t, "users", issues[3].Field)
	assert.False(t, issues[3].Required)
	assert.Contains(t, issues[3].Message, "whole number")
}

func TestParse_Conversions(t *testing.T) {
	text := "date,conversion_name,conversions,revenue\n" +
		"2024-01-01,purchase,3,$149.97\n" +
		"2024-01-01,lead,2,\n" +
		"2024-01-02,purchase,1,\"1,000.50\"\n"

	f, err := Parse("conversions_daily.csv", text)
	require.NoError(t, err)
	require.Len(t, f.Records.Conversions, 3)

	assert.True(t, f.Records.Conversions[0].Revenue.Valid)
	assert.Equal(t, "149.97", f.Records.Conversions[0].Revenue.Decimal.String())
	assert.False(t, f.Records.Conversions[1].Revenue.Valid, "empty revenue is unknown, not zero")
	assert.Equal(t, "1000.5", f.Records.Conversions[2].Revenue.Decimal.String())
	assert.Empty(t, f.Records.CellIssues)
}

func TestParse_EventsCampaignsBenchmarks(t *testing.T) {
	files := map[string]string{
		"events_daily.csv":     "date,event_name,sessions_with_event,event_count\n2024-01-01,signup,10,12\n",
		"campaign_catalog.csv": "utm_campaign,utm_source,start_date,end_date\nSpring,newsletter,2024-01-01,01/31/2024\n",
		"benchmarks.csv":       "metric,target,unit\nConversion Rate,5,%\n",
	}

	set, err := ParseAll(files)
	require.NoError(t, err)

	require.Len(t, set.Events, 1)
	assert.Equal(t, "signup", set.Events[0].EventName)
	assert.Equal(t, int64(12), set.Events[0].EventCount)

	require.Len(t, set.Campaigns, 1)
	assert.Equal(t, "Spring", set.Campaigns[0].Campaign)
	assert.Equal(t, "newsletter", set.Campaigns[0].Source)
	assert.Equal(t, date("2024-01-31"), set.Campaigns[0].EndDate)

	require.Len(t, set.Benchmarks, 1)
	assert.Equal(t, "Conversion Rate", set.Benchmarks[0].Metric)
	assert.InDelta(t, 5.0, set.Benchmarks[0].Target, 1e-9)

	require.Len(t, set.Files, 3)
	assert.Equal(t, "benchmarks.csv", set.Files[0].Label, "files are processed in label order")
	assert.Empty(t, set.Unclassified)
}

func TestParse_StructuralErrors(t *testing.T) {
	tests := []struct {
		name       string
		label      string
		text       string
		wantColumn string
	}{
		{name: "empty input", label: "sessions_daily.csv", text: ""},
		{name: "only blank lines", label: "sessions_daily.csv", text: "\n , \n"},
		{name: "missing required column", label: "sessions_daily.csv", text: "date,users\n2024-01-01,5\n", wantColumn: "sessions"},
		{name: "events missing count", label: "events_daily.csv", text: "date,event_name,sessions_with_event\n", wantColumn: "event_count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.label, tt.text)
			require.Error(t, err)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, tt.label, parseErr.File)
			assert.Equal(t, tt.wantColumn, parseErr.Column)
		})
	}
}

func TestParseAll_FirstErrorAborts(t *testing.T) {
	_, err := ParseAll(map[string]string{
		"a_sessions_daily.csv": "date,sessions\n2024-01-01,1\n",
		"b_events_daily.csv":   "date\n2024-01-01\n",
	})
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "b_events_daily.csv", parseErr.File)
}

func TestParse_GenericFallback(t *testing.T) {
	t.Run("headers match a known schema", func(t *testing.T) {
		f, err := Parse("export.csv", "day,event,sessions,count\n2024-01-01,click,4,9\n")
		require.NoError(t, err)
		assert.True(t, f.Sniffed)
		assert.Equal(t, KindGeneric, f.Kind)
		require.Len(t, f.Records.Events, 1, "the events schema wins over sessions by specificity")
		assert.Equal(t, int64(9), f.Records.Events[0].EventCount)
		assert.Equal(t, []string{"export.csv"}, f.Records.Unclassified)
	})

	t.Run("unknown shape keeps coerced rows", func(t *testing.T) {
		f, err := Parse("notes.csv", "when,what,amount\n2024-01-01,launch,\"1,200\"\n")
		require.NoError(t, err)
		assert.False(t, f.Sniffed)
		assert.True(t, f.Records.IsEmpty())
		require.Len(t, f.Generic, 1)

		row := f.Generic[0]
		require.NotNil(t, row["when"].Date)
		assert.Equal(t, date("2024-01-01"), *row["when"].Date)
		require.NotNil(t, row["amount"].Number)
		assert.InDelta(t, 1200.0, *row["amount"].Number, 1e-9)
		assert.Equal(t, "launch", row["what"].Text)
		assert.Nil(t, row["what"].Number)
		assert.Equal(t, []string{"notes.csv"}, f.Records.Unclassified)
	})
}

func TestParser_CustomClassifierAndSchema(t *testing.T) {
	traffic := Schema{
		Kind:     "traffic",
		Required: []string{"day", "visits"},
		Build: func(row *Row, set *model.RecordSet) {
			set.Sessions = append(set.Sessions, model.SessionRecord{
				Date:     row.Date("day"),
				Sessions: row.Count("visits"),
				Line:     row.Line(),
			})
		},
	}
	p := NewParser(
		WithSchema(traffic),
		WithClassifier(func(label string) Kind {
			if strings.HasPrefix(label, "traffic") {
				return "traffic"
			}
			return DefaultClassifier(label)
		}),
	)

	f, err := p.Parse("traffic-jan.csv", "day,visits\n2024-01-05,42\n")
	require.NoError(t, err)
	require.Len(t, f.Records.Sessions, 1)
	assert.Equal(t, int64(42), f.Records.Sessions[0].Sessions)
	assert.Empty(t, f.Records.Unclassified)
}

func TestParser_ConcurrentUse(t *testing.T) {
	p := NewParser()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := p.Parse("sessions_daily.csv", "date,sessions\n2024-01-01,1\n2024-01-02,2\n")
			assert.NoError(t, err)
			assert.Len(t, f.Records.Sessions, 2)
		}()
	}
	wg.Wait()
}
