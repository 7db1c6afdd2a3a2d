// Package export renders analytics reports as JSON or sectioned CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/Veraticus/tally/internal/model"
)

// Format names an export encoding.
type Format string

// Supported formats. Sheets is handled by the sheets package.
const (
	FormatJSON   Format = "json"
	FormatCSV    Format = "csv"
	FormatSheets Format = "sheets"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatCSV, FormatSheets:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// Section names, in output order.
const (
	SectionSummary             = "summary"
	SectionTrends              = "trends"
	SectionTopEvents           = "top_events"
	SectionConversionTypes     = "conversion_types"
	SectionCampaignPerformance = "campaign_performance"
	SectionBenchmarkComparison = "benchmark_comparison"
	SectionDailyTrends         = "daily_trends"
)

// Section is one titled table.
type Section struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Payload is the JSON export document.
type Payload struct {
	DataPoints map[model.RecordType]int `json:"dataPoints"`
	ImportID   string                   `json:"importId"`
	DateRange  model.DateRange          `json:"dateRange"`
	Trends     model.Trends             `json:"trends"`
	Metrics    model.MetricsSnapshot    `json:"metrics"`
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, report *model.AnalyticsReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Payload{
		ImportID:   report.ImportID,
		DateRange:  report.DateRange,
		DataPoints: report.DataPoints,
		Metrics:    report.Metrics,
		Trends:     report.Trends,
	}); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteCSV writes every section as "# name", a header row, then data rows,
// with a blank line between sections. Missing values are empty cells.
func WriteCSV(w io.Writer, report *model.AnalyticsReport) error {
	for i, section := range Sections(report) {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "# %s\n", section.Name); err != nil {
			return err
		}
		cw := csv.NewWriter(w)
		if err := cw.Write(section.Header); err != nil {
			return fmt.Errorf("failed to write %s header: %w", section.Name, err)
		}
		if err := cw.WriteAll(section.Rows); err != nil {
			return fmt.Errorf("failed to write %s rows: %w", section.Name, err)
		}
	}
	return nil
}

// Sections flattens a report into its tables.
func Sections(report *model.AnalyticsReport) []Section {
	m := report.Metrics
	return []Section{
		summarySection(report),
		trendsSection(report.Trends),
		topEventsSection(m.TopEvents),
		conversionTypesSection(m.ConversionTypes),
		campaignSection(m.CampaignPerformance),
		benchmarkSection(m.BenchmarkComparison),
		dailySection(m.DailyTrends),
	}
}

func summarySection(report *model.AnalyticsReport) Section {
	m := report.Metrics
	return Section{
		Name:   SectionSummary,
		Header: []string{"metric", "value"},
		Rows: [][]string{
			{"import_id", report.ImportID},
			{"start_date", report.DateRange.Start},
			{"end_date", report.DateRange.End},
			{"mode", string(m.Mode)},
			{"total_sessions", formatInt(m.TotalSessions)},
			{"total_users", formatInt(m.TotalUsers)},
			{"total_page_views", formatInt(m.TotalPageViews)},
			{"total_conversions", formatInt(m.TotalConversions)},
			{"conversion_rate", formatFloat(m.ConversionRate)},
			{"bounce_rate", formatFloat(m.BounceRate)},
			{"bounce_rate_estimated", strconv.FormatBool(m.BounceRateEstimated)},
			{"avg_session_duration", formatFloat(m.AvgSessionDuration)},
			{"total_revenue", formatMoney(m.TotalRevenue)},
			{"revenue_per_session", formatMoney(m.RevenuePerSession)},
			{"revenue_per_user", formatMoney(m.RevenuePerUser)},
		},
	}
}

func trendsSection(t model.Trends) Section {
	return Section{
		Name:   SectionTrends,
		Header: []string{"metric", "change_percent", "window_days"},
		Rows: [][]string{
			{"sessions", formatOptional(t.SessionsTrend), strconv.Itoa(t.WindowDays)},
			{"conversions", formatOptional(t.ConversionsTrend), strconv.Itoa(t.WindowDays)},
			{"revenue", formatOptional(t.RevenueTrend), strconv.Itoa(t.WindowDays)},
			{"bounce_rate", formatOptional(t.BounceRateTrend), strconv.Itoa(t.WindowDays)},
		},
	}
}

func topEventsSection(events []model.EventSummary) Section {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{e.Name, formatInt(e.Count), formatInt(e.Sessions)})
	}
	return Section{Name: SectionTopEvents, Header: []string{"event_name", "event_count", "sessions_with_event"}, Rows: rows}
}

func conversionTypesSection(types []model.ConversionSummary) Section {
	rows := make([][]string, 0, len(types))
	for _, c := range types {
		rows = append(rows, []string{c.Name, formatInt(c.Count), formatMoney(c.Revenue)})
	}
	return Section{Name: SectionConversionTypes, Header: []string{"conversion_name", "conversions", "revenue"}, Rows: rows}
}

func campaignSection(campaigns []model.CampaignPerformance) Section {
	rows := make([][]string, 0, len(campaigns))
	for _, c := range campaigns {
		rows = append(rows, []string{
			c.Campaign,
			c.Source,
			c.StartDate,
			c.EndDate,
			formatInt(c.Sessions),
			formatInt(c.Conversions),
			formatFloat(c.ConversionRate),
			formatMoney(c.Revenue),
			formatMoney(c.RevenuePerSession),
		})
	}
	return Section{
		Name: SectionCampaignPerformance,
		Header: []string{
			"campaign", "source", "start_date", "end_date", "sessions",
			"conversions", "conversion_rate", "revenue", "revenue_per_session",
		},
		Rows: rows,
	}
}

func benchmarkSection(benchmarks []model.BenchmarkComparison) Section {
	rows := make([][]string, 0, len(benchmarks))
	for _, b := range benchmarks {
		rows = append(rows, []string{
			b.Metric,
			formatFloat(b.Target),
			formatOptional(b.Actual),
			b.Unit,
			string(b.Status),
			formatOptional(b.PercentOfTarget),
		})
	}
	return Section{
		Name:   SectionBenchmarkComparison,
		Header: []string{"metric", "target", "actual", "unit", "status", "percent_of_target"},
		Rows:   rows,
	}
}

func dailySection(days []model.DailyTrend) Section {
	rows := make([][]string, 0, len(days))
	for _, d := range days {
		rows = append(rows, []string{
			d.Day,
			formatInt(d.Sessions),
			formatInt(d.Conversions),
			formatMoney(d.Revenue),
			formatFloat(d.BounceRate),
		})
	}
	return Section{
		Name:   SectionDailyTrends,
		Header: []string{"date", "sessions", "conversions", "revenue", "bounce_rate"},
		Rows:   rows,
	}
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatOptional(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

func formatMoney(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 2, 64)
}
