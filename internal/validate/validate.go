// Package validate checks parsed record sets before they are persisted.
package validate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/tally/internal/model"
	"github.com/shopspring/decimal"
)

// Severity separates blocking errors from informational warnings.
type Severity string

// Severities.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes, stable for API consumers.
const (
	CodeMissingValue        = "missing_value"
	CodeMalformedValue      = "malformed_value"
	CodeNegativeValue       = "negative_value"
	CodeOutOfRange          = "out_of_range"
	CodeInvalidDateRange    = "invalid_date_range"
	CodeEmptyImport         = "empty_import"
	CodeDuplicateRow        = "duplicate_row"
	CodeEventCountLow       = "event_count_below_sessions"
	CodeUnknownMetric       = "unknown_metric"
	CodeRevenueNoConversion = "revenue_without_conversion"
	CodeUnclassifiedFile    = "unclassified_file"
)

// Issue is one finding with enough detail to locate and fix the source cell.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	File     string   `json:"file,omitempty"`
	Field    string   `json:"field,omitempty"`
	Value    string   `json:"value,omitempty"`
	Message  string   `json:"message"`
	Row      int      `json:"row,omitempty"`
}

func (i Issue) String() string {
	var b strings.Builder
	if i.File != "" {
		b.WriteString(i.File)
		if i.Row > 0 {
			fmt.Fprintf(&b, ":%d", i.Row)
		}
		b.WriteString(": ")
	}
	if i.Field != "" {
		fmt.Fprintf(&b, "%s: ", i.Field)
	}
	b.WriteString(i.Message)
	if i.Value != "" {
		fmt.Fprintf(&b, " (got %q)", i.Value)
	}
	return b.String()
}

// Result is the outcome of validating one record set.
type Result struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	IsValid  bool    `json:"isValid"`
}

// WarningMessages renders warnings for batch metadata.
func (r Result) WarningMessages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.String())
	}
	return out
}

// Err returns a *ValidationError when the result has errors.
func (r Result) Err() error {
	if r.IsValid {
		return nil
	}
	return &ValidationError{Issues: r.Errors, Warnings: r.Warnings}
}

// ValidationError blocks persistence. It is recoverable: fix the input and retry.
type ValidationError struct {
	Issues   []Issue
	Warnings []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	if len(e.Issues) == 1 {
		return "validation failed: " + e.Issues[0].String()
	}
	return fmt.Sprintf("validation failed with %d errors; first: %s", len(e.Issues), e.Issues[0].String())
}

type validator struct {
	result Result
}

func (v *validator) add(sev Severity, code, file string, row int, field, value, format string, args ...any) {
	issue := Issue{
		Severity: sev,
		Code:     code,
		File:     file,
		Row:      row,
		Field:    field,
		Value:    value,
		Message:  fmt.Sprintf(format, args...),
	}
	if sev == SeverityError {
		v.result.Errors = append(v.result.Errors, issue)
		return
	}
	v.result.Warnings = append(v.result.Warnings, issue)
}

func (v *validator) nonNegative(file string, row int, field string, n int64) {
	if n < 0 {
		v.add(SeverityError, CodeNegativeValue, file, row, field, strconv.FormatInt(n, 10), "must not be negative")
	}
}

func (v *validator) percentage(file string, row int, field string, p float64) {
	if p < 0 || p > 100 {
		v.add(SeverityError, CodeOutOfRange, file, row, field, strconv.FormatFloat(p, 'f', -1, 64), "must be between 0 and 100")
	}
}

// Validate runs schema, range and cross-field checks. It reads nothing but
// its argument.
func Validate(set *model.RecordSet) Result {
	v := &validator{}
	if set == nil {
		set = &model.RecordSet{}
	}

	v.checkCells(set)
	v.checkSessions(set.Sessions)
	v.checkEvents(set.Events)
	v.checkConversions(set.Conversions)
	v.checkCampaigns(set.Campaigns)
	v.checkBenchmarks(set.Benchmarks)

	for _, label := range set.Unclassified {
		v.add(SeverityWarning, CodeUnclassifiedFile, label, 0, "", "",
			"file name matched no known schema; parsed by best effort")
	}
	if set.IsEmpty() {
		v.add(SeverityError, CodeEmptyImport, "", 0, "", "", "no records found in any category")
	}

	v.result.IsValid = len(v.result.Errors) == 0
	return v.result
}

func (v *validator) checkCells(set *model.RecordSet) {
	for _, c := range set.CellIssues {
		code := CodeMalformedValue
		if c.Missing {
			code = CodeMissingValue
		}
		sev := SeverityWarning
		if c.Required {
			sev = SeverityError
		}
		v.add(sev, code, c.File, c.Line, c.Field, c.Value, "%s", c.Message)
	}
}

func (v *validator) checkSessions(rows []model.SessionRecord) {
	seen := make(map[string]int, len(rows))
	for _, r := range rows {
		v.nonNegative(r.File, r.Line, "sessions", r.Sessions)
		v.nonNegative(r.File, r.Line, "users", r.Users)
		v.nonNegative(r.File, r.Line, "page_views", r.PageViews)
		v.nonNegative(r.File, r.Line, "conversions", r.Conversions)
		v.percentage(r.File, r.Line, "bounce_rate", r.BounceRate)
		if r.AvgSessionDuration < 0 {
			v.add(SeverityError, CodeNegativeValue, r.File, r.Line, "avg_session_duration",
				strconv.FormatFloat(r.AvgSessionDuration, 'f', -1, 64), "must not be negative")
		}

		if r.Date.IsZero() {
			continue
		}
		key := r.Date.Format(model.DateLayout)
		if first, dup := seen[key]; dup {
			v.add(SeverityWarning, CodeDuplicateRow, r.File, r.Line, "date", key,
				"duplicate session row for this date (first seen on line %d)", first)
			continue
		}
		seen[key] = r.Line
	}
}

func (v *validator) checkEvents(rows []model.EventRecord) {
	seen := make(map[string]int, len(rows))
	for _, r := range rows {
		v.nonNegative(r.File, r.Line, "sessions_with_event", r.SessionsWithEvent)
		v.nonNegative(r.File, r.Line, "event_count", r.EventCount)

		if r.EventCount < r.SessionsWithEvent {
			v.add(SeverityWarning, CodeEventCountLow, r.File, r.Line, "event_count", strconv.FormatInt(r.EventCount, 10),
				"event count is lower than sessions with event (%d)", r.SessionsWithEvent)
		}

		if r.Date.IsZero() || r.EventName == "" {
			continue
		}
		key := r.Date.Format(model.DateLayout) + "|" + r.EventName
		if first, dup := seen[key]; dup {
			v.add(SeverityWarning, CodeDuplicateRow, r.File, r.Line, "event_name", r.EventName,
				"duplicate event row for this date and name (first seen on line %d)", first)
			continue
		}
		seen[key] = r.Line
	}
}

func (v *validator) checkConversions(rows []model.ConversionRecord) {
	seen := make(map[string]int, len(rows))
	for _, r := range rows {
		v.nonNegative(r.File, r.Line, "conversions", r.Conversions)

		if r.Revenue.Valid {
			if r.Revenue.Decimal.IsNegative() {
				v.add(SeverityError, CodeNegativeValue, r.File, r.Line, "revenue", r.Revenue.Decimal.String(), "must not be negative")
			} else if r.Conversions == 0 && r.Revenue.Decimal.GreaterThan(decimal.Zero) {
				v.add(SeverityWarning, CodeRevenueNoConversion, r.File, r.Line, "revenue", r.Revenue.Decimal.String(),
					"revenue reported on a row with no conversions")
			}
		}

		if r.Date.IsZero() || r.ConversionName == "" {
			continue
		}
		key := r.Date.Format(model.DateLayout) + "|" + r.ConversionName
		if first, dup := seen[key]; dup {
			v.add(SeverityWarning, CodeDuplicateRow, r.File, r.Line, "conversion_name", r.ConversionName,
				"duplicate conversion row for this date and name (first seen on line %d)", first)
			continue
		}
		seen[key] = r.Line
	}
}

func (v *validator) checkCampaigns(rows []model.CampaignRecord) {
	seen := make(map[string]int, len(rows))
	for _, r := range rows {
		if r.StartDate.IsZero() || r.EndDate.IsZero() {
			continue
		}
		if r.EndDate.Before(r.StartDate) {
			v.add(SeverityError, CodeInvalidDateRange, r.File, r.Line, "end_date", r.EndDate.Format(model.DateLayout),
				"end date is before start date %s", r.StartDate.Format(model.DateLayout))
		}

		key := strings.ToLower(r.Campaign) + "|" + r.StartDate.Format(model.DateLayout) + "|" + r.EndDate.Format(model.DateLayout)
		if first, dup := seen[key]; dup {
			v.add(SeverityWarning, CodeDuplicateRow, r.File, r.Line, "campaign", r.Campaign,
				"duplicate campaign for this window (first seen on line %d)", first)
			continue
		}
		seen[key] = r.Line
	}
}

func (v *validator) checkBenchmarks(rows []model.BenchmarkRecord) {
	seen := make(map[model.Metric]int, len(rows))
	for _, r := range rows {
		if r.Metric == "" {
			continue
		}
		metric, known := model.NormalizeMetric(r.Metric)
		if !known {
			v.add(SeverityWarning, CodeUnknownMetric, r.File, r.Line, "metric", r.Metric,
				"metric is not one of the computed metrics and cannot be compared")
			continue
		}
		if isRateMetric(metric) || strings.TrimSpace(r.Unit) == "%" {
			v.percentage(r.File, r.Line, "target", r.Target)
		}
		if first, dup := seen[metric]; dup {
			v.add(SeverityWarning, CodeDuplicateRow, r.File, r.Line, "metric", r.Metric,
				"duplicate benchmark for %s (first seen on line %d)", metric, first)
			continue
		}
		seen[metric] = r.Line
	}
}

func isRateMetric(m model.Metric) bool {
	return m == model.MetricConversionRate || m == model.MetricBounceRate
}
