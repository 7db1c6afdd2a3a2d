package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/shopspring/decimal"
)

// recordTables maps each leaf category onto its table.
var recordTables = map[model.RecordType]string{
	model.RecordTypeSessions:    "sessions_daily",
	model.RecordTypeEvents:      "events_daily",
	model.RecordTypeConversions: "conversions_daily",
	model.RecordTypeCampaigns:   "campaigns",
	model.RecordTypeBenchmarks:  "benchmarks",
}

func formatDay(t time.Time) string {
	return model.Day(t).Format(model.DateLayout)
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored date %q: %w", s, err)
	}
	return t, nil
}

func insertSessionsTx(ctx context.Context, q queryable, importID string, records []model.SessionRecord) error {
	stmt, err := q.PrepareContext(ctx, `
		INSERT INTO sessions_daily (
			import_id, date, sessions, users, page_views,
			avg_session_duration, bounce_rate, conversions, line
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx,
			importID,
			formatDay(r.Date),
			r.Sessions,
			r.Users,
			r.PageViews,
			r.AvgSessionDuration,
			r.BounceRate,
			r.Conversions,
			r.Line,
		); err != nil {
			return fmt.Errorf("failed to insert session row %d: %w", i, err)
		}
	}
	return nil
}

func insertEventsTx(ctx context.Context, q queryable, importID string, records []model.EventRecord) error {
	stmt, err := q.PrepareContext(ctx, `
		INSERT INTO events_daily (
			import_id, date, event_name, sessions_with_event, event_count, line
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx,
			importID,
			formatDay(r.Date),
			r.EventName,
			r.SessionsWithEvent,
			r.EventCount,
			r.Line,
		); err != nil {
			return fmt.Errorf("failed to insert event row %d: %w", i, err)
		}
	}
	return nil
}

func insertConversionsTx(ctx context.Context, q queryable, importID string, records []model.ConversionRecord) error {
	stmt, err := q.PrepareContext(ctx, `
		INSERT INTO conversions_daily (
			import_id, date, conversion_name, conversions, revenue, line
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range records {
		// Revenue is stored as exact decimal text; NULL keeps "unknown" distinct from zero.
		var revenue any
		if r.Revenue.Valid {
			revenue = r.Revenue.Decimal.String()
		}
		if _, err := stmt.ExecContext(ctx,
			importID,
			formatDay(r.Date),
			r.ConversionName,
			r.Conversions,
			revenue,
			r.Line,
		); err != nil {
			return fmt.Errorf("failed to insert conversion row %d: %w", i, err)
		}
	}
	return nil
}

func insertCampaignsTx(ctx context.Context, q queryable, importID string, records []model.CampaignRecord) error {
	stmt, err := q.PrepareContext(ctx, `
		INSERT INTO campaigns (
			import_id, campaign, source, start_date, end_date, line
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx,
			importID,
			r.Campaign,
			r.Source,
			formatDay(r.StartDate),
			formatDay(r.EndDate),
			r.Line,
		); err != nil {
			return fmt.Errorf("failed to insert campaign row %d: %w", i, err)
		}
	}
	return nil
}

func insertBenchmarksTx(ctx context.Context, q queryable, importID string, records []model.BenchmarkRecord) error {
	stmt, err := q.PrepareContext(ctx, `
		INSERT INTO benchmarks (import_id, metric, target, unit, line)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, importID, r.Metric, r.Target, r.Unit, r.Line); err != nil {
			return fmt.Errorf("failed to insert benchmark row %d: %w", i, err)
		}
	}
	return nil
}

// GetRecordSet loads every leaf row for an import, ordered by date then source line.
func (s *SQLiteStorage) GetRecordSet(ctx context.Context, importID string) (*model.RecordSet, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(importID, "importID"); err != nil {
		return nil, err
	}

	set := &model.RecordSet{}
	var err error
	if set.Sessions, err = s.getSessions(ctx, importID); err != nil {
		return nil, err
	}
	if set.Events, err = s.getEvents(ctx, importID); err != nil {
		return nil, err
	}
	if set.Conversions, err = s.getConversions(ctx, importID); err != nil {
		return nil, err
	}
	if set.Campaigns, err = s.getCampaigns(ctx, importID); err != nil {
		return nil, err
	}
	if set.Benchmarks, err = s.getBenchmarks(ctx, importID); err != nil {
		return nil, err
	}
	return set, nil
}

func (s *SQLiteStorage) getSessions(ctx context.Context, importID string) ([]model.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, sessions, users, page_views, avg_session_duration, bounce_rate, conversions, line
		FROM sessions_daily
		WHERE import_id = ?
		ORDER BY date, line
	`, importID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.SessionRecord
	for rows.Next() {
		var (
			r    model.SessionRecord
			date string
		)
		if err := rows.Scan(&date, &r.Sessions, &r.Users, &r.PageViews,
			&r.AvgSessionDuration, &r.BounceRate, &r.Conversions, &r.Line); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		if r.Date, err = parseDay(date); err != nil {
			return nil, err
		}
		r.ImportID = importID
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStorage) getEvents(ctx context.Context, importID string) ([]model.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, event_name, sessions_with_event, event_count, line
		FROM events_daily
		WHERE import_id = ?
		ORDER BY date, line
	`, importID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.EventRecord
	for rows.Next() {
		var (
			r    model.EventRecord
			date string
		)
		if err := rows.Scan(&date, &r.EventName, &r.SessionsWithEvent, &r.EventCount, &r.Line); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if r.Date, err = parseDay(date); err != nil {
			return nil, err
		}
		r.ImportID = importID
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStorage) getConversions(ctx context.Context, importID string) ([]model.ConversionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, conversion_name, conversions, revenue, line
		FROM conversions_daily
		WHERE import_id = ?
		ORDER BY date, line
	`, importID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.ConversionRecord
	for rows.Next() {
		var (
			r       model.ConversionRecord
			date    string
			revenue decimal.NullDecimal
		)
		if err := rows.Scan(&date, &r.ConversionName, &r.Conversions, &revenue, &r.Line); err != nil {
			return nil, fmt.Errorf("failed to scan conversion row: %w", err)
		}
		if r.Date, err = parseDay(date); err != nil {
			return nil, err
		}
		r.Revenue = revenue
		r.ImportID = importID
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStorage) getCampaigns(ctx context.Context, importID string) ([]model.CampaignRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT campaign, source, start_date, end_date, line
		FROM campaigns
		WHERE import_id = ?
		ORDER BY start_date, line
	`, importID)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.CampaignRecord
	for rows.Next() {
		var (
			r          model.CampaignRecord
			start, end string
		)
		if err := rows.Scan(&r.Campaign, &r.Source, &start, &end, &r.Line); err != nil {
			return nil, fmt.Errorf("failed to scan campaign row: %w", err)
		}
		if r.StartDate, err = parseDay(start); err != nil {
			return nil, err
		}
		if r.EndDate, err = parseDay(end); err != nil {
			return nil, err
		}
		r.ImportID = importID
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStorage) getBenchmarks(ctx context.Context, importID string) ([]model.BenchmarkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT metric, target, unit, line
		FROM benchmarks
		WHERE import_id = ?
		ORDER BY line, id
	`, importID)
	if err != nil {
		return nil, fmt.Errorf("failed to query benchmarks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.BenchmarkRecord
	for rows.Next() {
		var r model.BenchmarkRecord
		if err := rows.Scan(&r.Metric, &r.Target, &r.Unit, &r.Line); err != nil {
			return nil, fmt.Errorf("failed to scan benchmark row: %w", err)
		}
		r.ImportID = importID
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountRecords counts persisted rows of one category for an import. The
// mixed type sums all five categories.
func (s *SQLiteStorage) CountRecords(ctx context.Context, importID string, recordType model.RecordType) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(importID, "importID"); err != nil {
		return 0, err
	}

	if recordType == model.RecordTypeMixed {
		total := 0
		for _, t := range model.LeafTypes {
			n, err := s.countTable(ctx, recordTables[t], importID)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	}

	table, ok := recordTables[recordType]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRecord, recordType)
	}
	return s.countTable(ctx, table, importID)
}

// table is always one of recordTables, never caller input.
func (s *SQLiteStorage) countTable(ctx context.Context, table, importID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE import_id = ?`, importID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s rows: %w", table, err)
	}
	return n, nil
}
