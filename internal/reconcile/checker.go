// Package reconcile compares declared import sizes with persisted row counts.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/telemetry"
)

// Verification statuses.
const (
	StatusMatch    = "match"
	StatusMismatch = "mismatch"
)

// Store is the read-only storage surface the checker needs.
type Store interface {
	GetImportBatch(ctx context.Context, id string) (*model.ImportBatch, error)
	ListImportBatches(ctx context.Context, filter model.BatchFilter) ([]model.ImportBatch, error)
	CountRecords(ctx context.Context, importID string, recordType model.RecordType) (int, error)
}

// Verification is the result of checking one batch.
type Verification struct {
	CheckedAt time.Time        `json:"checkedAt"`
	ImportID  string           `json:"importId"`
	Type      model.RecordType `json:"type"`
	Status    string           `json:"status"`
	Expected  int              `json:"expected"`
	Actual    int              `json:"dbCount"`
	IsMatch   bool             `json:"isMatch"`
}

// MismatchError reports a verification whose counts disagree. Checks never
// fail on a mismatch; callers that want a failing exit wrap it themselves.
type MismatchError struct {
	Verification Verification
}

func (e *MismatchError) Error() string {
	v := e.Verification
	return fmt.Sprintf("import %s: expected %d %s records, found %d", v.ImportID, v.Expected, v.Type, v.Actual)
}

// Progress is notified after each batch a sweep checks.
type Progress interface {
	Add(n int) error
}

// SweepOptions bounds a sweep.
type SweepOptions struct {
	Since    *time.Time
	Progress Progress
	Limit    int
}

// SweepReport summarizes a sweep.
type SweepReport struct {
	Mismatches []Verification `json:"mismatches"`
	Checked    int            `json:"checked"`
	Skipped    int            `json:"skipped"`
}

// Checker verifies batches. It never writes.
type Checker struct {
	store   Store
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// NewChecker creates a checker. metrics may be nil.
func NewChecker(store Store, metrics *telemetry.Metrics, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		store:   store,
		logger:  logger.With("component", "reconcile"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Verify compares the batch's declared count with its persisted rows. For
// mixed batches every category is summed. Unknown ids return common.ErrNotFound.
func (c *Checker) Verify(ctx context.Context, importID string) (Verification, error) {
	batch, err := c.store.GetImportBatch(ctx, importID)
	if err != nil {
		return Verification{}, fmt.Errorf("load import %s: %w", importID, err)
	}
	return c.verifyBatch(ctx, batch)
}

func (c *Checker) verifyBatch(ctx context.Context, batch *model.ImportBatch) (Verification, error) {
	recordType := batch.RecordType
	if !recordType.IsLeaf() {
		recordType = model.RecordTypeMixed
	}

	actual, err := c.store.CountRecords(ctx, batch.ID, recordType)
	if err != nil {
		return Verification{}, fmt.Errorf("count records for %s: %w", batch.ID, err)
	}

	v := Verification{
		ImportID:  batch.ID,
		Type:      recordType,
		Expected:  batch.ExpectedCount,
		Actual:    actual,
		IsMatch:   actual == batch.ExpectedCount,
		Status:    StatusMatch,
		CheckedAt: c.now().UTC(),
	}
	if !v.IsMatch {
		v.Status = StatusMismatch
		c.logger.Warn("import count mismatch",
			"import_id", v.ImportID,
			"type", v.Type,
			"expected", v.Expected,
			"actual", v.Actual)
	}
	c.metrics.ObserveReconciliation(v.IsMatch)
	return v, nil
}

// Sweep verifies every COMPLETED batch, newest first. Batches that cannot be
// counted are skipped and logged.
func (c *Checker) Sweep(ctx context.Context, opts SweepOptions) (SweepReport, error) {
	batches, err := c.store.ListImportBatches(ctx, model.BatchFilter{
		Status: model.StatusCompleted,
		Since:  opts.Since,
		Limit:  opts.Limit,
	})
	if err != nil {
		return SweepReport{}, fmt.Errorf("list imports: %w", err)
	}

	report := SweepReport{Mismatches: []Verification{}}
	for i := range batches {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		v, err := c.verifyBatch(ctx, &batches[i])
		if opts.Progress != nil {
			_ = opts.Progress.Add(1)
		}
		if err != nil {
			report.Skipped++
			c.logger.Error("reconciliation check failed", "import_id", batches[i].ID, "error", err)
			continue
		}
		report.Checked++
		if !v.IsMatch {
			report.Mismatches = append(report.Mismatches, v)
		}
	}

	c.logger.Info("reconciliation sweep finished",
		"checked", report.Checked,
		"mismatches", len(report.Mismatches),
		"skipped", report.Skipped)
	return report, nil
}
