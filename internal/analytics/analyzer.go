package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// RecordReader is the read side of storage the analyzer needs.
type RecordReader interface {
	GetImportBatch(ctx context.Context, id string) (*model.ImportBatch, error)
	GetRecordSet(ctx context.Context, importID string) (*model.RecordSet, error)
}

// Analyzer answers analytics queries for persisted imports.
type Analyzer struct {
	store      RecordReader
	calc       *Calculator
	windowDays int
}

// NewAnalyzer creates an analyzer. A nil calculator uses the default tolerance.
func NewAnalyzer(store RecordReader, calc *Calculator, windowDays int) *Analyzer {
	if calc == nil {
		calc = NewCalculator(DefaultTolerance)
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Analyzer{store: store, calc: calc, windowDays: windowDays}
}

// Analyze loads a completed import and computes its report. It returns
// common.ErrNotFound when the batch is missing or holds no rows, and
// common.ErrBatchNotReady when the batch has not completed.
func (a *Analyzer) Analyze(ctx context.Context, importID string) (*model.AnalyticsReport, error) {
	batch, err := a.store.GetImportBatch(ctx, importID)
	if err != nil {
		return nil, fmt.Errorf("load import %s: %w", importID, err)
	}
	if batch.Status != model.StatusCompleted {
		return nil, fmt.Errorf("import %s is %s: %w", importID, batch.Status, common.ErrBatchNotReady)
	}

	set, err := a.store.GetRecordSet(ctx, importID)
	if err != nil {
		return nil, fmt.Errorf("load records for %s: %w", importID, err)
	}
	if set.IsEmpty() {
		return nil, fmt.Errorf("import %s has no records: %w", importID, common.ErrNotFound)
	}

	report := BuildReport(importID, set, a.calc, a.windowDays)
	return &report, nil
}

// BuildReport computes the report for an in-memory record set.
func BuildReport(importID string, set *model.RecordSet, calc *Calculator, windowDays int) model.AnalyticsReport {
	if calc == nil {
		calc = NewCalculator(DefaultTolerance)
	}
	snap := calc.Calculate(set)
	return model.AnalyticsReport{
		ImportID:   importID,
		Metrics:    snap,
		Trends:     CalculateTrends(snap, windowDays),
		DateRange:  dateRange(set),
		DataPoints: set.Counts(),
	}
}

// dateRange spans the dated leaf rows, falling back to campaign windows.
func dateRange(set *model.RecordSet) model.DateRange {
	var lo, hi time.Time
	see := func(t time.Time) {
		if t.IsZero() {
			return
		}
		t = model.Day(t)
		if lo.IsZero() || t.Before(lo) {
			lo = t
		}
		if hi.IsZero() || t.After(hi) {
			hi = t
		}
	}

	for _, s := range set.Sessions {
		see(s.Date)
	}
	for _, e := range set.Events {
		see(e.Date)
	}
	for _, c := range set.Conversions {
		see(c.Date)
	}
	if lo.IsZero() {
		for _, c := range set.Campaigns {
			see(c.StartDate)
			see(c.EndDate)
		}
	}

	if lo.IsZero() {
		return model.DateRange{}
	}
	return model.DateRange{Start: lo.Format(model.DateLayout), End: hi.Format(model.DateLayout)}
}

// WithWindow returns an analyzer over the same store with a different trend
// window. Non-positive days keep the default.
func (a *Analyzer) WithWindow(days int) *Analyzer {
	return NewAnalyzer(a.store, a.calc, days)
}
