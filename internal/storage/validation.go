// Package storage provides the data persistence layer for tally.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/tally/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrEmptySlice       = errors.New("slice cannot be empty")
	ErrInvalidDateRange = errors.New("start date must be before end date")
	ErrInvalidStatus    = errors.New("invalid import status")
	ErrInvalidBatch     = errors.New("invalid import batch")
	ErrInvalidRecord    = errors.New("invalid record type")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateInsert checks the arguments shared by every bulk insert.
func validateInsert(ctx context.Context, importID string, n int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(importID, "importID"); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: records", ErrEmptySlice)
	}
	return nil
}

// validateBatch validates a batch before it is first written.
func validateBatch(batch *model.ImportBatch) error {
	if batch == nil {
		return fmt.Errorf("%w: batch", ErrNilParameter)
	}
	if strings.TrimSpace(batch.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidBatch)
	}
	if strings.TrimSpace(batch.SourceID) == "" {
		return fmt.Errorf("%w: missing source ID", ErrInvalidBatch)
	}
	if !batch.Status.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, batch.Status)
	}
	if batch.Status.IsTerminal() {
		return fmt.Errorf("%w: batch cannot be created in terminal status %s", ErrInvalidBatch, batch.Status)
	}
	if batch.RecordType != model.RecordTypeMixed && !batch.RecordType.IsLeaf() {
		return fmt.Errorf("%w: %q", ErrInvalidRecord, batch.RecordType)
	}
	if batch.ExpectedCount < 0 {
		return fmt.Errorf("%w: negative expected count", ErrInvalidBatch)
	}
	if batch.StartedAt.IsZero() {
		return fmt.Errorf("%w: missing start time", ErrInvalidBatch)
	}
	return nil
}
