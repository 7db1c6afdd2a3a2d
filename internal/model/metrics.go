package model

import "time"

// MetricsMode tells callers which rows the snapshot was derived from.
type MetricsMode string

// Snapshot modes. ModeEventFallback marks approximated session totals.
const (
	ModeSessions      MetricsMode = "sessions"
	ModeEventFallback MetricsMode = "event_fallback"
	ModeEmpty         MetricsMode = "empty"
)

// BenchmarkStatus classifies an actual value against its target.
type BenchmarkStatus string

// Benchmark statuses.
const (
	BenchmarkAbove       BenchmarkStatus = "above"
	BenchmarkBelow       BenchmarkStatus = "below"
	BenchmarkMeeting     BenchmarkStatus = "meeting"
	BenchmarkUnavailable BenchmarkStatus = "unavailable"
)

// DataSources records which record categories were non-empty.
type DataSources struct {
	HasSessions    bool `json:"hasSessions"`
	HasEvents      bool `json:"hasEvents"`
	HasConversions bool `json:"hasConversions"`
	HasCampaigns   bool `json:"hasCampaigns"`
	HasBenchmarks  bool `json:"hasBenchmarks"`
}

// EventSummary is one entry of the top events ranking.
type EventSummary struct {
	Name     string `json:"name"`
	Count    int64  `json:"count"`
	Sessions int64  `json:"sessions"`
}

// ConversionSummary groups conversion rows by conversion name.
type ConversionSummary struct {
	Revenue *float64 `json:"revenue"`
	Name    string   `json:"name"`
	Count   int64    `json:"count"`
}

// CampaignPerformance is a campaign joined with the rows inside its window.
type CampaignPerformance struct {
	Revenue           *float64 `json:"revenue"`
	RevenuePerSession *float64 `json:"revenuePerSession"`
	Campaign          string   `json:"campaign"`
	Source            string   `json:"source"`
	StartDate         string   `json:"startDate"`
	EndDate           string   `json:"endDate"`
	Sessions          int64    `json:"sessions"`
	Conversions       int64    `json:"conversions"`
	ConversionRate    float64  `json:"conversionRate"`
}

// BenchmarkComparison compares a target with the computed value.
type BenchmarkComparison struct {
	Actual          *float64        `json:"actual"`
	PercentOfTarget *float64        `json:"percentOfTarget"`
	Metric          string          `json:"metric"`
	Unit            string          `json:"unit"`
	Status          BenchmarkStatus `json:"status"`
	Target          float64         `json:"target"`
}

// DailyTrend is one day of the trend series.
type DailyTrend struct {
	Date        time.Time `json:"-"`
	Revenue     *float64  `json:"revenue"`
	Day         string    `json:"date"`
	Sessions    int64     `json:"sessions"`
	Conversions int64     `json:"conversions"`
	BounceRate  float64   `json:"bounceRate"`
}

// MetricsSnapshot is the aggregate derived from one record set.
// Nil pointer fields mean "no data", never zero.
type MetricsSnapshot struct {
	TotalRevenue        *float64              `json:"totalRevenue"`
	RevenuePerSession   *float64              `json:"revenuePerSession"`
	RevenuePerUser      *float64              `json:"revenuePerUser"`
	Mode                MetricsMode           `json:"mode"`
	TopEvents           []EventSummary        `json:"topEvents"`
	ConversionTypes     []ConversionSummary   `json:"conversionTypes"`
	CampaignPerformance []CampaignPerformance `json:"campaignPerformance"`
	BenchmarkComparison []BenchmarkComparison `json:"benchmarkComparison"`
	DailyTrends         []DailyTrend          `json:"dailyTrends"`
	Sources             DataSources           `json:"sources"`
	TotalSessions       int64                 `json:"totalSessions"`
	TotalUsers          int64                 `json:"totalUsers"`
	TotalPageViews      int64                 `json:"totalPageViews"`
	TotalConversions    int64                 `json:"totalConversions"`
	ConversionRate      float64               `json:"conversionRate"`
	BounceRate          float64               `json:"bounceRate"`
	AvgSessionDuration  float64               `json:"avgSessionDuration"`
	BounceRateEstimated bool                  `json:"bounceRateEstimated"`
}

// Trends holds period-over-period deltas in percent. Nil means no prior data.
type Trends struct {
	SessionsTrend    *float64 `json:"sessionsTrend"`
	ConversionsTrend *float64 `json:"conversionsTrend"`
	RevenueTrend     *float64 `json:"revenueTrend"`
	BounceRateTrend  *float64 `json:"bounceRateTrend"`
	WindowDays       int      `json:"windowDays"`
}

// DateRange is an inclusive span of days rendered at the boundary.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// AnalyticsReport is the analytics query response for one import.
type AnalyticsReport struct {
	DataPoints map[RecordType]int `json:"dataPoints"`
	ImportID   string             `json:"importId"`
	DateRange  DateRange          `json:"dateRange"`
	Trends     Trends             `json:"trends"`
	Metrics    MetricsSnapshot    `json:"metrics"`
}
