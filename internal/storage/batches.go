package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

const batchColumns = `id, source_id, record_type, expected_count, status, metadata, started_at, completed_at`

func createBatchTx(ctx context.Context, q queryable, batch *model.ImportBatch) error {
	metadata, err := json.Marshal(batch.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode batch metadata: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO import_batches (`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		batch.ID,
		batch.SourceID,
		string(batch.RecordType),
		batch.ExpectedCount,
		string(batch.Status),
		string(metadata),
		batch.StartedAt.UTC(),
		nil,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: import batch %s", common.ErrDuplicateEntry, batch.ID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("%w: source %s", common.ErrNotFound, batch.SourceID)
		}
		return fmt.Errorf("failed to create import batch: %w", err)
	}
	return nil
}

func completeBatchTx(ctx context.Context, q queryable, c service.BatchCompletion) error {
	if !c.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is not a terminal status", ErrInvalidStatus, c.Status)
	}

	var current string
	err := q.QueryRowContext(ctx, `SELECT status FROM import_batches WHERE id = ?`, c.ImportID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: import batch %s", common.ErrNotFound, c.ImportID)
	}
	if err != nil {
		return fmt.Errorf("failed to read batch status: %w", err)
	}

	if !model.ImportStatus(current).CanTransitionTo(c.Status) {
		return fmt.Errorf("%w: %s -> %s", common.ErrInvalidStatusTransition, current, c.Status)
	}

	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode batch metadata: %w", err)
	}

	completedAt := c.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	_, err = q.ExecContext(ctx, `
		UPDATE import_batches
		SET status = ?, completed_at = ?, expected_count = ?, metadata = ?
		WHERE id = ?
	`, string(c.Status), completedAt.UTC(), c.ExpectedCount, string(metadata), c.ImportID)
	if err != nil {
		return fmt.Errorf("failed to complete import batch: %w", err)
	}
	return nil
}

// GetImportBatch retrieves a batch by ID.
func (s *SQLiteStorage) GetImportBatch(ctx context.Context, id string) (*model.ImportBatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM import_batches WHERE id = ?`, id)
	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: import batch %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// ListImportBatches returns batches newest first.
func (s *SQLiteStorage) ListImportBatches(ctx context.Context, filter model.BatchFilter) ([]model.ImportBatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, filter.Status)
	}

	query := `SELECT ` + batchColumns + ` FROM import_batches WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Since != nil {
		query += ` AND started_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY started_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query import batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var batches []model.ImportBatch
	for rows.Next() {
		batch, scanErr := scanBatch(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		batches = append(batches, *batch)
	}
	return batches, rows.Err()
}

// DeleteImportBatch removes a batch and, through cascading keys, every leaf
// row tagged with it, in one transaction.
func (s *SQLiteStorage) DeleteImportBatch(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM import_batches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete import batch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: import batch %s", common.ErrNotFound, id)
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*model.ImportBatch, error) {
	var (
		batch       model.ImportBatch
		recordType  string
		status      string
		metadata    string
		completedAt sql.NullTime
	)
	err := row.Scan(
		&batch.ID,
		&batch.SourceID,
		&recordType,
		&batch.ExpectedCount,
		&status,
		&metadata,
		&batch.StartedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan import batch: %w", err)
	}

	batch.RecordType = model.RecordType(recordType)
	batch.Status = model.ImportStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		batch.CompletedAt = &t
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &batch.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode batch metadata: %w", err)
		}
	}
	return &batch, nil
}
