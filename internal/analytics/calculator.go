// Package analytics derives metrics snapshots and trends from leaf records.
package analytics

import (
	"sort"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/shopspring/decimal"
)

// DefaultTolerance is the relative band around a benchmark target that
// still counts as meeting it.
const DefaultTolerance = 0.05

// Calculator computes MetricsSnapshots. The zero value is not usable; use
// NewCalculator.
type Calculator struct {
	tolerance float64
}

// NewCalculator returns a calculator with the given benchmark tolerance
// (fraction of target). Non-positive values fall back to DefaultTolerance.
func NewCalculator(tolerance float64) *Calculator {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Calculator{tolerance: tolerance}
}

// Tolerance reports the benchmark tolerance in use.
func (c *Calculator) Tolerance() float64 {
	return c.tolerance
}

// CalculateMetrics computes a snapshot with the default tolerance.
func CalculateMetrics(
	sessions []model.SessionRecord,
	events []model.EventRecord,
	conversions []model.ConversionRecord,
	benchmarks []model.BenchmarkRecord,
	campaigns []model.CampaignRecord,
) model.MetricsSnapshot {
	return NewCalculator(DefaultTolerance).CalculateMetrics(sessions, events, conversions, benchmarks, campaigns)
}

// Calculate computes a snapshot for a whole record set.
func (c *Calculator) Calculate(set *model.RecordSet) model.MetricsSnapshot {
	if set == nil {
		set = &model.RecordSet{}
	}
	return c.CalculateMetrics(set.Sessions, set.Events, set.Conversions, set.Benchmarks, set.Campaigns)
}

// CalculateMetrics is a pure function of its inputs.
func (c *Calculator) CalculateMetrics(
	sessions []model.SessionRecord,
	events []model.EventRecord,
	conversions []model.ConversionRecord,
	benchmarks []model.BenchmarkRecord,
	campaigns []model.CampaignRecord,
) model.MetricsSnapshot {
	snap := model.MetricsSnapshot{
		Sources: model.DataSources{
			HasSessions:    len(sessions) > 0,
			HasEvents:      len(events) > 0,
			HasConversions: len(conversions) > 0,
			HasCampaigns:   len(campaigns) > 0,
			HasBenchmarks:  len(benchmarks) > 0,
		},
		TopEvents:           topEvents(events),
		ConversionTypes:     conversionTypes(conversions),
		CampaignPerformance: []model.CampaignPerformance{},
		BenchmarkComparison: []model.BenchmarkComparison{},
		DailyTrends:         []model.DailyTrend{},
	}

	revenue := sumRevenue(conversions)
	snap.TotalRevenue = revenue.float()

	var sessionConversions int64
	for _, s := range sessions {
		sessionConversions += s.Conversions
	}
	// Conversion rows are the source of conversions when session rows carry none.
	fromRows := len(conversions) > 0 && sessionConversions == 0
	var rowConversions int64
	for _, cv := range conversions {
		rowConversions += cv.Conversions
	}

	switch {
	case len(sessions) > 0:
		snap.Mode = model.ModeSessions
		var weightedBounce, weightedDuration, bounceSum, durationSum float64
		for _, s := range sessions {
			snap.TotalSessions += s.Sessions
			snap.TotalUsers += s.Users
			snap.TotalPageViews += s.PageViews
			weightedBounce += s.BounceRate * float64(s.Sessions)
			weightedDuration += s.AvgSessionDuration * float64(s.Sessions)
			bounceSum += s.BounceRate
			durationSum += s.AvgSessionDuration
		}
		if snap.TotalSessions > 0 {
			snap.BounceRate = weightedBounce / float64(snap.TotalSessions)
			snap.AvgSessionDuration = weightedDuration / float64(snap.TotalSessions)
		} else {
			snap.BounceRate = bounceSum / float64(len(sessions))
			snap.AvgSessionDuration = durationSum / float64(len(sessions))
		}
		snap.TotalConversions = sessionConversions
		if fromRows {
			snap.TotalConversions = rowConversions
		}

	case len(events) > 0 || len(conversions) > 0:
		// Approximation only: session totals come from sessions-with-event.
		snap.Mode = model.ModeEventFallback
		var withEvent, single int64
		for _, e := range events {
			withEvent += e.SessionsWithEvent
			if e.EventCount <= e.SessionsWithEvent {
				single += e.SessionsWithEvent
			}
		}
		snap.TotalSessions = withEvent
		snap.TotalUsers = withEvent
		snap.TotalConversions = rowConversions
		if len(events) > 0 {
			snap.BounceRate = percent(float64(single), float64(withEvent))
			snap.BounceRateEstimated = true
		}

	default:
		snap.Mode = model.ModeEmpty
	}

	snap.ConversionRate = percent(float64(snap.TotalConversions), float64(snap.TotalSessions))
	snap.RevenuePerSession = perUnit(snap.TotalRevenue, snap.TotalSessions)
	snap.RevenuePerUser = perUnit(snap.TotalRevenue, snap.TotalUsers)

	if snap.Mode == model.ModeSessions {
		snap.DailyTrends = dailyFromSessions(sessions, conversions, fromRows)
	} else if snap.Mode == model.ModeEventFallback {
		snap.DailyTrends = dailyFromEvents(events, conversions)
	}

	snap.CampaignPerformance = campaignPerformance(campaigns, sessions, events, conversions, fromRows || len(sessions) == 0)
	snap.BenchmarkComparison = c.compareBenchmarks(benchmarks, &snap)
	return snap
}

// percent is part/whole*100 with 0 for an empty whole.
func percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}

// perUnit divides revenue by a count, keeping the no-revenue sentinel.
func perUnit(revenue *float64, n int64) *float64 {
	if revenue == nil {
		return nil
	}
	v := 0.0
	if n > 0 {
		v = *revenue / float64(n)
	}
	return &v
}

// revenueSum accumulates exact revenue and remembers whether any row reported it.
type revenueSum struct {
	total decimal.Decimal
	seen  bool
}

func (r *revenueSum) add(v decimal.NullDecimal) {
	if !v.Valid {
		return
	}
	r.total = r.total.Add(v.Decimal)
	r.seen = true
}

func (r revenueSum) float() *float64 {
	if !r.seen {
		return nil
	}
	f := r.total.InexactFloat64()
	return &f
}

func sumRevenue(conversions []model.ConversionRecord) revenueSum {
	var r revenueSum
	for _, cv := range conversions {
		r.add(cv.Revenue)
	}
	return r
}

func topEvents(events []model.EventRecord) []model.EventSummary {
	byName := make(map[string]*model.EventSummary)
	for _, e := range events {
		s, ok := byName[e.EventName]
		if !ok {
			s = &model.EventSummary{Name: e.EventName}
			byName[e.EventName] = s
		}
		s.Count += e.EventCount
		s.Sessions += e.SessionsWithEvent
	}

	out := make([]model.EventSummary, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func conversionTypes(conversions []model.ConversionRecord) []model.ConversionSummary {
	type group struct {
		revenue revenueSum
		name    string
		count   int64
	}
	byName := make(map[string]*group)
	for _, cv := range conversions {
		g, ok := byName[cv.ConversionName]
		if !ok {
			g = &group{name: cv.ConversionName}
			byName[cv.ConversionName] = g
		}
		g.count += cv.Conversions
		g.revenue.add(cv.Revenue)
	}

	out := make([]model.ConversionSummary, 0, len(byName))
	for _, g := range byName {
		out = append(out, model.ConversionSummary{Name: g.name, Count: g.count, Revenue: g.revenue.float()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

type dayAgg struct {
	revenue        revenueSum
	date           time.Time
	sessions       int64
	conversions    int64
	weightedBounce float64
	bounceSum      float64
	rows           int
	singleSessions int64
	estimated      bool
}

func (d *dayAgg) trend() model.DailyTrend {
	t := model.DailyTrend{
		Date:        d.date,
		Day:         d.date.Format(model.DateLayout),
		Sessions:    d.sessions,
		Conversions: d.conversions,
		Revenue:     d.revenue.float(),
	}
	switch {
	case d.estimated:
		t.BounceRate = percent(float64(d.singleSessions), float64(d.sessions))
	case d.sessions > 0:
		t.BounceRate = d.weightedBounce / float64(d.sessions)
	case d.rows > 0:
		t.BounceRate = d.bounceSum / float64(d.rows)
	}
	return t
}

type dayIndex map[time.Time]*dayAgg

func (idx dayIndex) get(t time.Time) *dayAgg {
	key := model.Day(t)
	d, ok := idx[key]
	if !ok {
		d = &dayAgg{date: key}
		idx[key] = d
	}
	return d
}

func (idx dayIndex) sorted() []model.DailyTrend {
	out := make([]model.DailyTrend, 0, len(idx))
	for _, d := range idx {
		out = append(out, d.trend())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// dailyFromSessions has one row per date present in the session data.
func dailyFromSessions(sessions []model.SessionRecord, conversions []model.ConversionRecord, fromRows bool) []model.DailyTrend {
	idx := make(dayIndex)
	for _, s := range sessions {
		d := idx.get(s.Date)
		d.sessions += s.Sessions
		d.weightedBounce += s.BounceRate * float64(s.Sessions)
		d.bounceSum += s.BounceRate
		d.rows++
		if !fromRows {
			d.conversions += s.Conversions
		}
	}
	for _, cv := range conversions {
		d, ok := idx[model.Day(cv.Date)]
		if !ok {
			continue
		}
		d.revenue.add(cv.Revenue)
		if fromRows {
			d.conversions += cv.Conversions
		}
	}
	return idx.sorted()
}

// dailyFromEvents builds the estimated series used when no session rows exist.
func dailyFromEvents(events []model.EventRecord, conversions []model.ConversionRecord) []model.DailyTrend {
	idx := make(dayIndex)
	for _, e := range events {
		d := idx.get(e.Date)
		d.estimated = true
		d.sessions += e.SessionsWithEvent
		if e.EventCount <= e.SessionsWithEvent {
			d.singleSessions += e.SessionsWithEvent
		}
	}
	for _, cv := range conversions {
		d := idx.get(cv.Date)
		d.conversions += cv.Conversions
		d.revenue.add(cv.Revenue)
	}
	return idx.sorted()
}
