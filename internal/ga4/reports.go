package ga4

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"time"

	"google.golang.org/api/analyticsdata/v1beta"
)

// Labels of the rendered reports. The parser classifies them by substring.
const (
	LabelSessions    = "ga4_sessions_daily.csv"
	LabelEvents      = "ga4_events_daily.csv"
	LabelConversions = "ga4_conversions_daily.csv"
)

type report struct {
	// convert maps one row's dimension then metric values to CSV cells;
	// ok=false drops the row.
	convert    func(dims, metrics []string) (cells []string, ok bool, err error)
	name       string
	label      string
	header     []string
	dimensions []string
	metrics    []string
}

var reports = []report{
	{
		name:       "sessions",
		label:      LabelSessions,
		dimensions: []string{"date"},
		metrics:    []string{"sessions", "totalUsers", "screenPageViews", "averageSessionDuration", "bounceRate", "keyEvents"},
		header:     []string{"date", "sessions", "users", "page_views", "avg_session_duration", "bounce_rate", "conversions"},
		convert: func(dims, m []string) ([]string, bool, error) {
			day, err := normalizeDate(dims[0])
			if err != nil {
				return nil, false, err
			}
			bounce, err := scalePercent(m[4])
			if err != nil {
				return nil, false, err
			}
			return []string{day, m[0], m[1], m[2], m[3], bounce, wholeNumber(m[5])}, true, nil
		},
	},
	{
		name:       "events",
		label:      LabelEvents,
		dimensions: []string{"date", "eventName"},
		metrics:    []string{"sessions", "eventCount"},
		header:     []string{"date", "event_name", "sessions_with_event", "event_count"},
		convert: func(dims, m []string) ([]string, bool, error) {
			day, err := normalizeDate(dims[0])
			if err != nil {
				return nil, false, err
			}
			return []string{day, dims[1], m[0], m[1]}, true, nil
		},
	},
	{
		name:       "conversions",
		label:      LabelConversions,
		dimensions: []string{"date", "eventName"},
		metrics:    []string{"keyEvents", "totalRevenue"},
		header:     []string{"date", "conversion_name", "conversions", "revenue"},
		convert: func(dims, m []string) ([]string, bool, error) {
			count := wholeNumber(m[0])
			if count == "0" || count == "" {
				return nil, false, nil
			}
			day, err := normalizeDate(dims[0])
			if err != nil {
				return nil, false, err
			}
			return []string{day, dims[1], count, m[1]}, true, nil
		},
	},
}

func (r report) request(start, end time.Time) *analyticsdata.RunReportRequest {
	req := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{
			StartDate: start.Format("2006-01-02"),
			EndDate:   end.Format("2006-01-02"),
		}},
		OrderBys: []*analyticsdata.OrderBy{{
			Dimension: &analyticsdata.DimensionOrderBy{DimensionName: "date"},
		}},
	}
	for _, d := range r.dimensions {
		req.Dimensions = append(req.Dimensions, &analyticsdata.Dimension{Name: d})
	}
	for _, m := range r.metrics {
		req.Metrics = append(req.Metrics, &analyticsdata.Metric{Name: m})
	}
	return req
}

func (r report) render(rows []*analyticsdata.Row) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(r.header); err != nil {
		return "", err
	}
	for i, row := range rows {
		dims := values(len(r.dimensions), row.DimensionValues, func(v *analyticsdata.DimensionValue) string { return v.Value })
		metrics := values(len(r.metrics), row.MetricValues, func(v *analyticsdata.MetricValue) string { return v.Value })
		cells, ok, err := r.convert(dims, metrics)
		if err != nil {
			return "", fmt.Errorf("row %d: %w", i+1, err)
		}
		if !ok {
			continue
		}
		if err := w.Write(cells); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// values pads a row's values to n so short rows read as empty cells.
func values[T any](n int, in []*T, get func(*T) string) []string {
	out := make([]string, n)
	for i := 0; i < n && i < len(in); i++ {
		if in[i] != nil {
			out[i] = get(in[i])
		}
	}
	return out
}

// normalizeDate turns GA4's YYYYMMDD into YYYY-MM-DD.
func normalizeDate(s string) (string, error) {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return "", fmt.Errorf("invalid GA4 date %q", s)
	}
	return t.Format("2006-01-02"), nil
}

// scalePercent converts GA4's 0-1 ratio into a 0-100 percentage, rounded
// to four places.
func scalePercent(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", fmt.Errorf("invalid GA4 ratio %q", s)
	}
	return strconv.FormatFloat(math.Round(f*1e6)/1e4, 'f', -1, 64), nil
}

// wholeNumber drops a fractional part GA4 sometimes reports for counts.
func wholeNumber(s string) string {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return strconv.FormatInt(int64(f), 10)
}
