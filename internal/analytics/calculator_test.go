package analytics

import (
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

func money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestCalculateMetrics_SessionTotals(t *testing.T) {
	sessions := []model.SessionRecord{
		{Date: day("2024-01-01"), Sessions: 100, Users: 80, Conversions: 5},
		{Date: day("2024-01-02"), Sessions: 120, Users: 95, Conversions: 8},
	}

	snap := CalculateMetrics(sessions, nil, nil, nil, nil)

	assert.Equal(t, model.ModeSessions, snap.Mode)
	assert.Equal(t, int64(220), snap.TotalSessions)
	assert.Equal(t, int64(175), snap.TotalUsers)
	assert.Equal(t, int64(13), snap.TotalConversions)
	assert.InDelta(t, 5.909, snap.ConversionRate, 0.001)
	assert.Nil(t, snap.TotalRevenue, "no conversion rows means no revenue, not zero")
	assert.Nil(t, snap.RevenuePerSession)
	assert.False(t, snap.BounceRateEstimated)
	assert.True(t, snap.Sources.HasSessions)
	assert.False(t, snap.Sources.HasEvents)
	require.Len(t, snap.DailyTrends, 2)
	assert.Equal(t, "2024-01-01", snap.DailyTrends[0].Day)
	assert.Equal(t, int64(8), snap.DailyTrends[1].Conversions)
}

func TestCalculateMetrics_WeightedRates(t *testing.T) {
	sessions := []model.SessionRecord{
		{Date: day("2024-01-01"), Sessions: 100, BounceRate: 40, AvgSessionDuration: 60},
		{Date: day("2024-01-02"), Sessions: 300, BounceRate: 60, AvgSessionDuration: 120},
	}

	snap := CalculateMetrics(sessions, nil, nil, nil, nil)
	assert.InDelta(t, 55.0, snap.BounceRate, 1e-9)
	assert.InDelta(t, 105.0, snap.AvgSessionDuration, 1e-9)
}

func TestCalculateMetrics_ZeroSessions(t *testing.T) {
	sessions := []model.SessionRecord{
		{Date: day("2024-01-01"), Sessions: 0, BounceRate: 30, Conversions: 2},
		{Date: day("2024-01-02"), Sessions: 0, BounceRate: 50},
	}
	conversions := []model.ConversionRecord{
		{Date: day("2024-01-01"), ConversionName: "purchase", Conversions: 2, Revenue: money("40")},
	}

	snap := CalculateMetrics(sessions, nil, conversions, nil, nil)
	assert.Equal(t, 0.0, snap.ConversionRate)
	require.NotNil(t, snap.RevenuePerSession)
	assert.Equal(t, 0.0, *snap.RevenuePerSession)
	assert.InDelta(t, 40.0, snap.BounceRate, 1e-9, "simple mean when every row has zero sessions")
}

func TestCalculateMetrics_Revenue(t *testing.T) {
	sessions := []model.SessionRecord{
		{Date: day("2024-01-01"), Sessions: 50, Users: 40, Conversions: 3},
		{Date: day("2024-01-02"), Sessions: 50, Users: 40, Conversions: 1},
	}
	conversions := []model.ConversionRecord{
		{Date: day("2024-01-01"), ConversionName: "purchase", Conversions: 2, Revenue: money("19.99")},
		{Date: day("2024-01-01"), ConversionName: "signup", Conversions: 1},
		{Date: day("2024-01-02"), ConversionName: "purchase", Conversions: 1, Revenue: money("0.01")},
	}

	snap := CalculateMetrics(sessions, nil, conversions, nil, nil)

	require.NotNil(t, snap.TotalRevenue)
	assert.InDelta(t, 20.0, *snap.TotalRevenue, 1e-9)
	require.NotNil(t, snap.RevenuePerSession)
	assert.InDelta(t, 0.2, *snap.RevenuePerSession, 1e-9)
	require.NotNil(t, snap.RevenuePerUser)
	assert.InDelta(t, 0.25, *snap.RevenuePerUser, 1e-9)
	assert.Equal(t, int64(4), snap.TotalConversions, "session rows stay the conversion source")

	require.Len(t, snap.ConversionTypes, 2)
	assert.Equal(t, "purchase", snap.ConversionTypes[0].Name)
	assert.Equal(t, int64(3), snap.ConversionTypes[0].Count)
	require.NotNil(t, snap.ConversionTypes[0].Revenue)
	assert.Nil(t, snap.ConversionTypes[1].Revenue, "signup never reported revenue")

	require.Len(t, snap.DailyTrends, 2)
	require.NotNil(t, snap.DailyTrends[0].Revenue)
	assert.InDelta(t, 19.99, *snap.DailyTrends[0].Revenue, 1e-9)
}

func TestCalculateMetrics_ConversionRowsWhenSessionsCarryNone(t *testing.T) {
	sessions := []model.SessionRecord{
		{Date: day("2024-01-01"), Sessions: 100},
	}
	conversions := []model.ConversionRecord{
		{Date: day("2024-01-01"), ConversionName: "lead", Conversions: 7},
	}

	snap := CalculateMetrics(sessions, nil, conversions, nil, nil)
	assert.Equal(t, int64(7), snap.TotalConversions)
	assert.InDelta(t, 7.0, snap.ConversionRate, 1e-9)
	require.Len(t, snap.DailyTrends, 1)
	assert.Equal(t, int64(7), snap.DailyTrends[0].Conversions)
}

func TestCalculateMetrics_EventFallback(t *testing.T) {
	events := []model.EventRecord{
		{Date: day("2024-01-01"), EventName: "page_view", SessionsWithEvent: 60, EventCount: 60},
		{Date: day("2024-01-01"), EventName: "scroll", SessionsWithEvent: 40, EventCount: 90},
		{Date: day("2024-01-02"), EventName: "page_view", SessionsWithEvent: 100, EventCount: 150},
	}
	conversions := []model.ConversionRecord{
		{Date: day("2024-01-02"), ConversionName: "signup", Conversions: 10},
	}

	snap := CalculateMetrics(nil, events, conversions, nil, nil)

	assert.Equal(t, model.ModeEventFallback, snap.Mode)
	assert.True(t, snap.BounceRateEstimated)
	assert.Equal(t, int64(200), snap.TotalSessions)
	assert.Equal(t, int64(10), snap.TotalConversions)
	assert.InDelta(t, 30.0, snap.BounceRate, 1e-9)
	assert.InDelta(t, 5.0, snap.ConversionRate, 1e-9)

	require.Len(t, snap.TopEvents, 2)
	assert.Equal(t, model.EventSummary{Name: "page_view", Count: 210, Sessions: 160}, snap.TopEvents[0])
	assert.Equal(t, model.EventSummary{Name: "scroll", Count: 90, Sessions: 40}, snap.TopEvents[1])

	require.Len(t, snap.DailyTrends, 2)
	assert.InDelta(t, 60.0, snap.DailyTrends[0].BounceRate, 1e-9)
	assert.Equal(t, int64(10), snap.DailyTrends[1].Conversions)
}

func TestCalculateMetrics_Empty(t *testing.T) {
	snap := NewCalculator(0).Calculate(nil)
	assert.Equal(t, model.ModeEmpty, snap.Mode)
	assert.Zero(t, snap.TotalSessions)
	assert.Zero(t, snap.ConversionRate)
	assert.NotNil(t, snap.TopEvents)
	assert.NotNil(t, snap.DailyTrends)
	assert.Nil(t, snap.TotalRevenue)
}

func TestCalculateMetrics_CampaignWindow(t *testing.T) {
	sessions := []model.SessionRecord{
		{Date: day("2023-12-31"), Sessions: 1000, Conversions: 100},
		{Date: day("2024-01-01"), Sessions: 100, Conversions: 5},
		{Date: day("2024-01-31"), Sessions: 200, Conversions: 10},
		{Date: day("2024-02-01"), Sessions: 5000, Conversions: 500},
	}
	conversions := []model.ConversionRecord{
		{Date: day("2024-01-15"), ConversionName: "purchase", Conversions: 3, Revenue: money("30")},
		{Date: day("2024-02-02"), ConversionName: "purchase", Conversions: 9, Revenue: money("999")},
	}
	campaigns := []model.CampaignRecord{
		{Campaign: "Spring", Source: "newsletter", StartDate: day("2024-01-01"), EndDate: day("2024-01-31")},
		{Campaign: "Quiet", StartDate: day("2025-01-01"), EndDate: day("2025-01-31")},
	}

	snap := CalculateMetrics(sessions, nil, conversions, nil, campaigns)

	require.Len(t, snap.CampaignPerformance, 2)
	spring := snap.CampaignPerformance[0]
	assert.Equal(t, "Spring", spring.Campaign)
	assert.Equal(t, "newsletter", spring.Source)
	assert.Equal(t, "2024-01-01", spring.StartDate)
	assert.Equal(t, int64(300), spring.Sessions)
	assert.Equal(t, int64(15), spring.Conversions)
	assert.InDelta(t, 5.0, spring.ConversionRate, 1e-9)
	require.NotNil(t, spring.Revenue)
	assert.InDelta(t, 30.0, *spring.Revenue, 1e-9)
	require.NotNil(t, spring.RevenuePerSession)
	assert.InDelta(t, 0.1, *spring.RevenuePerSession, 1e-9)

	quiet := snap.CampaignPerformance[1]
	assert.Equal(t, "Quiet", quiet.Campaign)
	assert.Zero(t, quiet.Sessions)
	assert.Zero(t, quiet.ConversionRate)
	assert.Nil(t, quiet.Revenue)
}

func TestCalculateMetrics_Benchmarks(t *testing.T) {
	sessions := []model.SessionRecord{
		{Date: day("2024-01-01"), Sessions: 1000, Users: 800, BounceRate: 40, Conversions: 50},
	}
	benchmarks := []model.BenchmarkRecord{
		{Metric: "Conversion Rate", Target: 5, Unit: "%"},
		{Metric: "sessions", Target: 500},
		{Metric: "bounce rate", Target: 60},
		{Metric: "revenue", Target: 100},
		{Metric: "NPS", Target: 40},
		{Metric: "users", Target: 0},
		{Metric: "CVR", Target: 5.2},
	}

	snap := CalculateMetrics(sessions, nil, nil, benchmarks, nil)
	require.Len(t, snap.BenchmarkComparison, len(benchmarks))

	tests := []struct {
		metric     string
		wantStatus model.BenchmarkStatus
		wantActual *float64
		wantPct    *float64
	}{
		{metric: "Conversion Rate", wantStatus: model.BenchmarkMeeting, wantActual: ptr(5), wantPct: ptr(100)},
		{metric: "sessions", wantStatus: model.BenchmarkAbove, wantActual: ptr(1000), wantPct: ptr(200)},
		{metric: "bounce rate", wantStatus: model.BenchmarkBelow, wantActual: ptr(40), wantPct: ptr(40.0 / 60 * 100)},
		{metric: "revenue", wantStatus: model.BenchmarkUnavailable},
		{metric: "NPS", wantStatus: model.BenchmarkUnavailable},
		{metric: "users", wantStatus: model.BenchmarkAbove, wantActual: ptr(800)},
		{metric: "CVR", wantStatus: model.BenchmarkMeeting, wantActual: ptr(5), wantPct: ptr(5 / 5.2 * 100)},
	}
	for i, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			got := snap.BenchmarkComparison[i]
			assert.Equal(t, tt.metric, got.Metric)
			assert.Equal(t, tt.wantStatus, got.Status)
			assertFloatPtr(t, tt.wantActual, got.Actual)
			assertFloatPtr(t, tt.wantPct, got.PercentOfTarget)
		})
	}
}

func TestCalculator_Tolerance(t *testing.T) {
	sessions := []model.SessionRecord{{Date: day("2024-01-01"), Sessions: 108}}
	benchmarks := []model.BenchmarkRecord{{Metric: "sessions", Target: 100}}

	strict := NewCalculator(0.05).CalculateMetrics(sessions, nil, nil, benchmarks, nil)
	loose := NewCalculator(0.10).CalculateMetrics(sessions, nil, nil, benchmarks, nil)

	assert.Equal(t, model.BenchmarkAbove, strict.BenchmarkComparison[0].Status)
	assert.Equal(t, model.BenchmarkMeeting, loose.BenchmarkComparison[0].Status)
	assert.Equal(t, DefaultTolerance, NewCalculator(-1).Tolerance())
}

func TestCalculateMetrics_Deterministic(t *testing.T) {
	events := []model.EventRecord{
		{Date: day("2024-01-01"), EventName: "b", SessionsWithEvent: 5, EventCount: 5},
		{Date: day("2024-01-01"), EventName: "a", SessionsWithEvent: 5, EventCount: 5},
		{Date: day("2024-01-01"), EventName: "c", SessionsWithEvent: 1, EventCount: 9},
	}
	first := CalculateMetrics(nil, events, nil, nil, nil)
	for range 10 {
		assert.Equal(t, first, CalculateMetrics(nil, events, nil, nil, nil))
	}
	names := []string{first.TopEvents[0].Name, first.TopEvents[1].Name, first.TopEvents[2].Name}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func ptr(v float64) *float64 { return &v }

func assertFloatPtr(t *testing.T, want, got *float64) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	assert.InDelta(t, *want, *got, 1e-9)
}
