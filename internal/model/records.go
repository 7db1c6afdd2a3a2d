package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the single day-granularity text form used at every boundary.
const DateLayout = "2006-01-02"

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SessionRecord is one row of a sessions-daily export.
type SessionRecord struct {
	Date               time.Time
	ImportID           string
	Sessions           int64
	Users              int64
	PageViews          int64
	AvgSessionDuration float64 // seconds
	BounceRate         float64 // 0-100
	Conversions        int64
	File               string
	Line               int
}

// EventRecord is one row of an events-daily export.
type EventRecord struct {
	Date              time.Time
	ImportID          string
	EventName         string
	SessionsWithEvent int64
	EventCount        int64
	File              string
	Line              int
}

// ConversionRecord is one row of a conversions-daily export.
// Revenue is invalid (not zero) when the source did not report it.
type ConversionRecord struct {
	Date           time.Time
	Revenue        decimal.NullDecimal
	ImportID       string
	ConversionName string
	Conversions    int64
	File           string
	Line           int
}

// CampaignRecord is one row of the campaign catalog.
type CampaignRecord struct {
	StartDate time.Time
	EndDate   time.Time
	ImportID  string
	Campaign  string
	Source    string
	File      string
	Line      int
}

// Contains reports whether day falls inside the campaign window, inclusive.
func (c CampaignRecord) Contains(day time.Time) bool {
	d := Day(day)
	return !d.Before(Day(c.StartDate)) && !d.After(Day(c.EndDate))
}

// BenchmarkRecord is one target value for a named metric.
type BenchmarkRecord struct {
	ImportID string
	Metric   string
	Unit     string
	Target   float64
	File     string
	Line     int
}

// CellIssue describes a cell the parser could not coerce.
type CellIssue struct {
	File     string
	Field    string
	Value    string
	Message  string
	Line     int
	Required bool
	Missing  bool
}

// FileSummary records how one input was classified.
type FileSummary struct {
	Label string
	Kind  string
	Rows  int
}

// RecordSet is the typed result of parsing one import's inputs.
type RecordSet struct {
	Sessions     []SessionRecord
	Events       []EventRecord
	Conversions  []ConversionRecord
	Campaigns    []CampaignRecord
	Benchmarks   []BenchmarkRecord
	Files        []FileSummary
	Unclassified []string
	CellIssues   []CellIssue
}

// Counts returns the number of records per leaf category.
func (s RecordSet) Counts() map[RecordType]int {
	return map[RecordType]int{
		RecordTypeSessions:    len(s.Sessions),
		RecordTypeEvents:      len(s.Events),
		RecordTypeConversions: len(s.Conversions),
		RecordTypeCampaigns:   len(s.Campaigns),
		RecordTypeBenchmarks:  len(s.Benchmarks),
	}
}

// Total returns the number of leaf records across all categories.
func (s RecordSet) Total() int {
	total := 0
	for _, n := range s.Counts() {
		total += n
	}
	return total
}

// IsEmpty reports whether no leaf records were parsed.
func (s RecordSet) IsEmpty() bool {
	return s.Total() == 0
}

// DeclaredType returns the single non-empty category, or mixed.
func (s RecordSet) DeclaredType() RecordType {
	counts := s.Counts()
	found := RecordTypeMixed
	for _, t := range LeafTypes {
		if counts[t] == 0 {
			continue
		}
		if found != RecordTypeMixed {
			return RecordTypeMixed
		}
		found = t
	}
	return found
}

// Merge appends other into s.
func (s *RecordSet) Merge(other RecordSet) {
	s.Sessions = append(s.Sessions, other.Sessions...)
	s.Events = append(s.Events, other.Events...)
	s.Conversions = append(s.Conversions, other.Conversions...)
	s.Campaigns = append(s.Campaigns, other.Campaigns...)
	s.Benchmarks = append(s.Benchmarks, other.Benchmarks...)
	s.Files = append(s.Files, other.Files...)
	s.Unclassified = append(s.Unclassified, other.Unclassified...)
	s.CellIssues = append(s.CellIssues, other.CellIssues...)
}
