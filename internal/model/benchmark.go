package model

import (
	"strings"
	"unicode"
)

// Metric names a computed value a benchmark can target.
type Metric string

// Computed metrics available for benchmark comparison.
const (
	MetricSessions           Metric = "sessions"
	MetricUsers              Metric = "users"
	MetricPageViews          Metric = "page_views"
	MetricConversions        Metric = "conversions"
	MetricRevenue            Metric = "revenue"
	MetricConversionRate     Metric = "conversion_rate"
	MetricBounceRate         Metric = "bounce_rate"
	MetricAvgSessionDuration Metric = "avg_session_duration"
	MetricRevenuePerSession  Metric = "revenue_per_session"
	MetricRevenuePerUser     Metric = "revenue_per_user"
)

// KnownMetrics lists every metric a benchmark may reference.
var KnownMetrics = []Metric{
	MetricSessions,
	MetricUsers,
	MetricPageViews,
	MetricConversions,
	MetricRevenue,
	MetricConversionRate,
	MetricBounceRate,
	MetricAvgSessionDuration,
	MetricRevenuePerSession,
	MetricRevenuePerUser,
}

var metricAliases = map[string]Metric{
	"total_sessions":           MetricSessions,
	"visits":                   MetricSessions,
	"total_users":              MetricUsers,
	"active_users":             MetricUsers,
	"pageviews":                MetricPageViews,
	"total_page_views":         MetricPageViews,
	"total_conversions":        MetricConversions,
	"key_events":               MetricConversions,
	"total_revenue":            MetricRevenue,
	"cvr":                      MetricConversionRate,
	"cr":                       MetricConversionRate,
	"bounce":                   MetricBounceRate,
	"avg_duration":             MetricAvgSessionDuration,
	"average_session_duration": MetricAvgSessionDuration,
	"session_duration":         MetricAvgSessionDuration,
	"rps":                      MetricRevenuePerSession,
	"arpu":                     MetricRevenuePerUser,
}

// NormalizeMetric maps a free-form benchmark name such as "Conversion Rate (%)"
// onto a known metric. ok is false when nothing matches.
func NormalizeMetric(name string) (Metric, bool) {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	key := strings.TrimSuffix(b.String(), "_")

	for _, m := range KnownMetrics {
		if string(m) == key {
			return m, true
		}
	}
	if m, ok := metricAliases[key]; ok {
		return m, true
	}
	return "", false
}
