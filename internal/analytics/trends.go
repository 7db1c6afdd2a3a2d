package analytics

import (
	"time"

	"github.com/Veraticus/tally/internal/model"
)

// DefaultWindowDays is the trend comparison window.
const DefaultWindowDays = 30

type window struct {
	revenue     float64
	bounceSum   float64
	sessions    int64
	conversions int64
	days        int
	revenueDays int
}

// CalculateTrends compares the most recent windowDays of the daily series,
// anchored on its latest date, with the windowDays before that. A trend is
// nil when the previous window has nothing to compare against.
func CalculateTrends(snapshot model.MetricsSnapshot, windowDays int) model.Trends {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	trends := model.Trends{WindowDays: windowDays}
	if len(snapshot.DailyTrends) == 0 {
		return trends
	}

	var latest time.Time
	for _, d := range snapshot.DailyTrends {
		if day := trendDate(d); day.After(latest) {
			latest = day
		}
	}
	recentStart := latest.AddDate(0, 0, -windowDays)
	previousStart := latest.AddDate(0, 0, -2*windowDays)

	var recent, previous window
	for _, d := range snapshot.DailyTrends {
		day := trendDate(d)
		var w *window
		switch {
		case day.After(recentStart):
			w = &recent
		case day.After(previousStart):
			w = &previous
		default:
			continue
		}
		w.days++
		w.sessions += d.Sessions
		w.conversions += d.Conversions
		w.bounceSum += d.BounceRate
		if d.Revenue != nil {
			w.revenue += *d.Revenue
			w.revenueDays++
		}
	}

	trends.SessionsTrend = change(float64(previous.sessions), float64(recent.sessions))
	trends.ConversionsTrend = change(float64(previous.conversions), float64(recent.conversions))
	if previous.revenueDays > 0 {
		trends.RevenueTrend = change(previous.revenue, recent.revenue)
	}
	if previous.days > 0 {
		var recentBounce float64
		if recent.days > 0 {
			recentBounce = recent.bounceSum / float64(recent.days)
		}
		trends.BounceRateTrend = change(previous.bounceSum/float64(previous.days), recentBounce)
	}
	return trends
}

// change is the percent change from prev to cur, nil when prev is zero.
func change(prev, cur float64) *float64 {
	if prev == 0 {
		return nil
	}
	v := (cur - prev) / prev * 100
	return &v
}

func trendDate(d model.DailyTrend) time.Time {
	if !d.Date.IsZero() {
		return model.Day(d.Date)
	}
	t, err := time.Parse(model.DateLayout, d.Day)
	if err != nil {
		return time.Time{}
	}
	return t
}
