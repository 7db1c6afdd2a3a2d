package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/google/uuid"
)

// UpsertSource creates or refreshes the single source row for (user, provider).
// Repeated syncs for the same pair therefore always land on one row.
func (s *SQLiteStorage) UpsertSource(ctx context.Context, userID string, provider model.Provider, externalRef string) (*model.Source, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(string(provider), "provider"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (id, user_id, provider, external_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			external_ref = CASE WHEN excluded.external_ref = '' THEN sources.external_ref ELSE excluded.external_ref END,
			updated_at = excluded.updated_at
	`, uuid.NewString(), userID, string(provider), externalRef, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert source: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, external_ref, last_synced_at, created_at, updated_at
		FROM sources WHERE user_id = ? AND provider = ?
	`, userID, string(provider))
	return scanSource(row)
}

// GetSource retrieves a source by ID.
func (s *SQLiteStorage) GetSource(ctx context.Context, id string) (*model.Source, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, external_ref, last_synced_at, created_at, updated_at
		FROM sources WHERE id = ?
	`, id)
	source, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: source %s", common.ErrNotFound, id)
	}
	return source, err
}

// MarkSourceSynced records the time of the last successful import for a source.
func (s *SQLiteStorage) MarkSourceSynced(ctx context.Context, id string, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE sources SET last_synced_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark source synced: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: source %s", common.ErrNotFound, id)
	}
	return nil
}

func scanSource(row rowScanner) (*model.Source, error) {
	var (
		source   model.Source
		provider string
		lastSync sql.NullTime
	)
	err := row.Scan(&source.ID, &source.UserID, &provider, &source.ExternalRef,
		&lastSync, &source.CreatedAt, &source.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}
	source.Provider = model.Provider(provider)
	if lastSync.Valid {
		t := lastSync.Time
		source.LastSyncedAt = &t
	}
	return &source, nil
}
