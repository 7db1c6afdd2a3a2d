package analytics

import (
	"math"
	"sort"
	"strings"

	"github.com/Veraticus/tally/internal/model"
)

// campaignPerformance joins each campaign with the rows dated inside its
// inclusive window. Campaigns and rows share no key; the date window is the join.
func campaignPerformance(
	campaigns []model.CampaignRecord,
	sessions []model.SessionRecord,
	events []model.EventRecord,
	conversions []model.ConversionRecord,
	conversionsFromRows bool,
) []model.CampaignPerformance {
	out := make([]model.CampaignPerformance, 0, len(campaigns))
	for _, c := range campaigns {
		start, end := model.Day(c.StartDate), model.Day(c.EndDate)
		perf := model.CampaignPerformance{
			Campaign:  c.Campaign,
			Source:    c.Source,
			StartDate: start.Format(model.DateLayout),
			EndDate:   end.Format(model.DateLayout),
		}

		if len(sessions) > 0 {
			for _, s := range sessions {
				if !c.Contains(s.Date) {
					continue
				}
				perf.Sessions += s.Sessions
				if !conversionsFromRows {
					perf.Conversions += s.Conversions
				}
			}
		} else {
			for _, e := range events {
				if c.Contains(e.Date) {
					perf.Sessions += e.SessionsWithEvent
				}
			}
		}

		var revenue revenueSum
		for _, cv := range conversions {
			if !c.Contains(cv.Date) {
				continue
			}
			revenue.add(cv.Revenue)
			if conversionsFromRows {
				perf.Conversions += cv.Conversions
			}
		}

		perf.Revenue = revenue.float()
		perf.ConversionRate = percent(float64(perf.Conversions), float64(perf.Sessions))
		perf.RevenuePerSession = perUnit(perf.Revenue, perf.Sessions)
		out = append(out, perf)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Sessions != out[j].Sessions {
			return out[i].Sessions > out[j].Sessions
		}
		return strings.ToLower(out[i].Campaign) < strings.ToLower(out[j].Campaign)
	})
	return out
}

// metricValue returns the snapshot value a benchmark metric refers to.
// Revenue metrics are nil when no revenue was reported.
func metricValue(snap *model.MetricsSnapshot, m model.Metric) *float64 {
	f := func(v float64) *float64 { return &v }
	switch m {
	case model.MetricSessions:
		return f(float64(snap.TotalSessions))
	case model.MetricUsers:
		return f(float64(snap.TotalUsers))
	case model.MetricPageViews:
		return f(float64(snap.TotalPageViews))
	case model.MetricConversions:
		return f(float64(snap.TotalConversions))
	case model.MetricConversionRate:
		return f(snap.ConversionRate)
	case model.MetricBounceRate:
		return f(snap.BounceRate)
	case model.MetricAvgSessionDuration:
		return f(snap.AvgSessionDuration)
	case model.MetricRevenue:
		return snap.TotalRevenue
	case model.MetricRevenuePerSession:
		return snap.RevenuePerSession
	case model.MetricRevenuePerUser:
		return snap.RevenuePerUser
	}
	return nil
}

// compareBenchmarks classifies every benchmark row, in input order.
func (c *Calculator) compareBenchmarks(benchmarks []model.BenchmarkRecord, snap *model.MetricsSnapshot) []model.BenchmarkComparison {
	out := make([]model.BenchmarkComparison, 0, len(benchmarks))
	for _, b := range benchmarks {
		cmp := model.BenchmarkComparison{
			Metric: b.Metric,
			Unit:   b.Unit,
			Target: b.Target,
			Status: model.BenchmarkUnavailable,
		}

		metric, ok := model.NormalizeMetric(b.Metric)
		if ok && snap.Mode != model.ModeEmpty {
			cmp.Actual = metricValue(snap, metric)
		}
		if cmp.Actual == nil {
			out = append(out, cmp)
			continue
		}

		actual := *cmp.Actual
		if b.Target != 0 {
			pct := actual / b.Target * 100
			cmp.PercentOfTarget = &pct
		}
		band := math.Abs(b.Target) * c.tolerance
		switch {
		case math.Abs(actual-b.Target) <= band:
			cmp.Status = model.BenchmarkMeeting
		case actual > b.Target:
			cmp.Status = model.BenchmarkAbove
		default:
			cmp.Status = model.BenchmarkBelow
		}
		out = append(out, cmp)
	}
	return out
}
