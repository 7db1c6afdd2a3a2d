package testutil

import (
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/shopspring/decimal"
)

// CSV fixtures in the shapes the parser accepts.
const (
	SessionsCSV = `date,sessions,users,page_views,avg_session_duration,bounce_rate,conversions
2024-01-01,100,80,250,55,45.5,5
2024-01-02,120,95,300,61.5,40,8
`
	EventsCSV = `date,event_name,sessions_with_event,event_count
2024-01-01,page_view,100,240
2024-01-01,signup,10,12
2024-01-02,page_view,120,260
`
	ConversionsCSV = `date,conversion_name,conversions,revenue
2024-01-01,purchase,3,149.97
2024-01-02,purchase,2,"$1,000.00"
2024-01-02,lead,6,
`
	CampaignsCSV = `campaign,source,start_date,end_date
Spring,newsletter,2024-01-01,2024-01-31
`
	BenchmarksCSV = `metric,target,unit
conversion rate,5,%
sessions,200,
`
)

// SampleFiles returns one labeled input per schema.
func SampleFiles() map[string]string {
	return map[string]string{
		"sessions_daily.csv":    SessionsCSV,
		"events_daily.csv":      EventsCSV,
		"conversions_daily.csv": ConversionsCSV,
		"campaign_catalog.csv":  CampaignsCSV,
		"benchmarks.csv":        BenchmarksCSV,
	}
}

// Day parses a YYYY-MM-DD literal and panics on malformed input.
func Day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// Money returns a valid revenue amount.
func Money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// SampleRecordSet returns records equivalent to SampleFiles.
func SampleRecordSet() *model.RecordSet {
	return &model.RecordSet{
		Sessions: []model.SessionRecord{
			{Date: Day("2024-01-01"), Sessions: 100, Users: 80, PageViews: 250, AvgSessionDuration: 55, BounceRate: 45.5, Conversions: 5, Line: 2},
			{Date: Day("2024-01-02"), Sessions: 120, Users: 95, PageViews: 300, AvgSessionDuration: 61.5, BounceRate: 40, Conversions: 8, Line: 3},
		},
		Events: []model.EventRecord{
			{Date: Day("2024-01-01"), EventName: "page_view", SessionsWithEvent: 100, EventCount: 240, Line: 2},
			{Date: Day("2024-01-01"), EventName: "signup", SessionsWithEvent: 10, EventCount: 12, Line: 3},
			{Date: Day("2024-01-02"), EventName: "page_view", SessionsWithEvent: 120, EventCount: 260, Line: 4},
		},
		Conversions: []model.ConversionRecord{
			{Date: Day("2024-01-01"), ConversionName: "purchase", Conversions: 3, Revenue: Money("149.97"), Line: 2},
			{Date: Day("2024-01-02"), ConversionName: "purchase", Conversions: 2, Revenue: Money("1000.00"), Line: 3},
			{Date: Day("2024-01-02"), ConversionName: "lead", Conversions: 6, Line: 4},
		},
		Campaigns: []model.CampaignRecord{
			{Campaign: "Spring", Source: "newsletter", StartDate: Day("2024-01-01"), EndDate: Day("2024-01-31"), Line: 2},
		},
		Benchmarks: []model.BenchmarkRecord{
			{Metric: "conversion rate", Target: 5, Unit: "%", Line: 2},
			{Metric: "sessions", Target: 200, Line: 3},
		},
	}
}

// SessionsOnly returns a sessions-only record set with n consecutive days
// starting at 2024-01-01.
func SessionsOnly(n int) *model.RecordSet {
	set := &model.RecordSet{}
	start := Day("2024-01-01")
	for i := 0; i < n; i++ {
		set.Sessions = append(set.Sessions, model.SessionRecord{
			Date:        start.AddDate(0, 0, i),
			Sessions:    10,
			Users:       8,
			Conversions: 1,
			Line:        i + 2,
		})
	}
	return set
}
