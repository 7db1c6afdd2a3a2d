package parser

import (
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/shopspring/decimal"
)

// Kind selects which schema a file is parsed with.
type Kind string

// Known kinds. KindGeneric means the label matched no schema.
const (
	KindSessions    Kind = "sessions_daily"
	KindEvents      Kind = "events_daily"
	KindConversions Kind = "conversions_daily"
	KindCampaigns   Kind = "campaign_catalog"
	KindBenchmarks  Kind = "benchmarks"
	KindGeneric     Kind = "generic"
)

// Schema describes one tabular shape: its columns and how a row becomes records.
type Schema struct {
	// Aliases maps alternative normalized header names onto canonical ones.
	Aliases  map[string]string
	Build    func(row *Row, set *model.RecordSet)
	Kind     Kind
	Required []string
	Optional []string
}

// canonical resolves a normalized header to the schema's field name.
func (s Schema) canonical(header string) string {
	if c, ok := s.Aliases[header]; ok {
		return c
	}
	return header
}

func (s Schema) isRequired(field string) bool {
	for _, f := range s.Required {
		if f == field {
			return true
		}
	}
	return false
}

// Row gives typed access to the cells of one data row. Cells that cannot be
// coerced are recorded as issues and read as the zero value.
type Row struct {
	cells  map[string]string
	schema *Schema
	issues *[]model.CellIssue
	file   string
	line   int
}

// Line is the 1-based line number of the row in its source text.
func (r *Row) Line() int { return r.line }

// File is the label of the input the row came from.
func (r *Row) File() string { return r.file }

// Has reports whether the column exists and the cell is non-empty.
func (r *Row) Has(field string) bool {
	return r.cells[field] != ""
}

func (r *Row) issue(field, value, message string, missing bool) {
	*r.issues = append(*r.issues, model.CellIssue{
		File:     r.file,
		Line:     r.line,
		Field:    field,
		Value:    value,
		Message:  message,
		Required: r.schema.isRequired(field),
		Missing:  missing,
	})
}

// raw returns the cell text, recording a missing-value issue for required fields.
func (r *Row) raw(field string) (string, bool) {
	v := r.cells[field]
	if v == "" {
		if r.schema.isRequired(field) {
			r.issue(field, "", "required value is missing", true)
		}
		return "", false
	}
	return v, true
}

// Text returns the trimmed cell text.
func (r *Row) Text(field string) string {
	v, _ := r.raw(field)
	return v
}

// Count returns a whole-number cell.
func (r *Row) Count(field string) int64 {
	v, ok := r.raw(field)
	if !ok {
		return 0
	}
	n, err := ParseCount(v)
	if err != nil {
		r.issue(field, v, err.Error(), false)
		return 0
	}
	return n
}

// Float returns a numeric cell; percent signs and separators are accepted.
func (r *Row) Float(field string) float64 {
	v, ok := r.raw(field)
	if !ok {
		return 0
	}
	n, err := ParseNumber(v)
	if err != nil {
		r.issue(field, v, err.Error(), false)
		return 0
	}
	return n
}

// Date returns a day-granularity cell.
func (r *Row) Date(field string) time.Time {
	v, ok := r.raw(field)
	if !ok {
		return time.Time{}
	}
	d, err := ParseDate(v)
	if err != nil {
		r.issue(field, v, err.Error(), false)
		return time.Time{}
	}
	return d
}

// Money returns an exact amount, invalid when the cell is empty or malformed.
func (r *Row) Money(field string) decimal.NullDecimal {
	v, ok := r.raw(field)
	if !ok {
		return decimal.NullDecimal{}
	}
	d, err := ParseMoney(v)
	if err != nil {
		r.issue(field, v, err.Error(), false)
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// DefaultSchemas returns the five built-in schemas in sniffing order.
func DefaultSchemas() []Schema {
	return []Schema{
		{
			Kind:     KindSessions,
			Required: []string{"date", "sessions"},
			Optional: []string{"users", "page_views", "avg_session_duration", "bounce_rate", "conversions"},
			Aliases: map[string]string{
				"day":                      "date",
				"total_users":              "users",
				"active_users":             "users",
				"pageviews":                "page_views",
				"screen_page_views":        "page_views",
				"screenpageviews":          "page_views",
				"views":                    "page_views",
				"average_session_duration": "avg_session_duration",
				"averagesessionduration":   "avg_session_duration",
				"avg_duration":             "avg_session_duration",
				"session_duration":         "avg_session_duration",
				"bouncerate":               "bounce_rate",
				"key_events":               "conversions",
			},
			Build: func(row *Row, set *model.RecordSet) {
				set.Sessions = append(set.Sessions, model.SessionRecord{
					Date:               row.Date("date"),
					Sessions:           row.Count("sessions"),
					Users:              row.Count("users"),
					PageViews:          row.Count("page_views"),
					AvgSessionDuration: row.Float("avg_session_duration"),
					BounceRate:         row.Float("bounce_rate"),
					Conversions:        row.Count("conversions"),
					File:               row.File(),
					Line:               row.Line(),
				})
			},
		},
		{
			Kind:     KindEvents,
			Required: []string{"date", "event_name", "sessions_with_event", "event_count"},
			Aliases: map[string]string{
				"day":               "date",
				"event":             "event_name",
				"eventname":         "event_name",
				"name":              "event_name",
				"sessions":          "sessions_with_event",
				"sessions_w_event":  "sessions_with_event",
				"sessionswithevent": "sessions_with_event",
				"count":             "event_count",
				"eventcount":        "event_count",
				"events":            "event_count",
				"occurrences":       "event_count",
			},
			Build: func(row *Row, set *model.RecordSet) {
				set.Events = append(set.Events, model.EventRecord{
					Date:              row.Date("date"),
					EventName:         row.Text("event_name"),
					SessionsWithEvent: row.Count("sessions_with_event"),
					EventCount:        row.Count("event_count"),
					File:              row.File(),
					Line:              row.Line(),
				})
			},
		},
		{
			Kind:     KindConversions,
			Required: []string{"date", "conversion_name", "conversions"},
			Optional: []string{"revenue"},
			Aliases: map[string]string{
				"day":               "date",
				"conversion":        "conversion_name",
				"conversion_type":   "conversion_name",
				"goal":              "conversion_name",
				"name":              "conversion_name",
				"event_name":        "conversion_name",
				"count":             "conversions",
				"conversion_count":  "conversions",
				"key_events":        "conversions",
				"value":             "revenue",
				"conversion_value":  "revenue",
				"purchase_revenue":  "revenue",
				"total_revenue":     "revenue",
				"totalrevenue":      "revenue",
				"event_value":       "revenue",
			},
			Build: func(row *Row, set *model.RecordSet) {
				set.Conversions = append(set.Conversions, model.ConversionRecord{
					Date:           row.Date("date"),
					ConversionName: row.Text("conversion_name"),
					Conversions:    row.Count("conversions"),
					Revenue:        row.Money("revenue"),
					File:           row.File(),
					Line:           row.Line(),
				})
			},
		},
		{
			Kind:     KindCampaigns,
			Required: []string{"campaign", "start_date", "end_date"},
			Optional: []string{"source"},
			Aliases: map[string]string{
				"utm_campaign":  "campaign",
				"campaign_name": "campaign",
				"name":          "campaign",
				"utm_source":    "source",
				"source_name":   "source",
				"start":         "start_date",
				"starts":        "start_date",
				"end":           "end_date",
				"ends":          "end_date",
			},
			Build: func(row *Row, set *model.RecordSet) {
				set.Campaigns = append(set.Campaigns, model.CampaignRecord{
					Campaign:  row.Text("campaign"),
					Source:    row.Text("source"),
					StartDate: row.Date("start_date"),
					EndDate:   row.Date("end_date"),
					File:      row.File(),
					Line:      row.Line(),
				})
			},
		},
		{
			Kind:     KindBenchmarks,
			Required: []string{"metric", "target"},
			Optional: []string{"unit"},
			Aliases: map[string]string{
				"metric_name":  "metric",
				"name":         "metric",
				"kpi":          "metric",
				"target_value": "target",
				"benchmark":    "target",
				"value":        "target",
				"units":        "unit",
			},
			Build: func(row *Row, set *model.RecordSet) {
				set.Benchmarks = append(set.Benchmarks, model.BenchmarkRecord{
					Metric: row.Text("metric"),
					Target: row.Float("target"),
					Unit:   row.Text("unit"),
					File:   row.File(),
					Line:   row.Line(),
				})
			},
		},
	}
}
