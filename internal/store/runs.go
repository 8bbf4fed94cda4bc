package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

// EtlRun is one row of the pipeline run audit table.
type EtlRun struct {
	RunID        string
	StartedAt    time.Time
	CompletedAt  sql.NullTime
	Status       string
	StartDate    time.Time
	EndDate      time.Time
	CacheHit     sql.NullBool
	RowsMerged   sql.NullInt64
	ExtractionMS sql.NullInt64
	TransformMS  sql.NullInt64
	LoadingMS    sql.NullInt64
	ErrorMessage sql.NullString
}

// StartRun records a pipeline run before extraction begins.
func (s *Store) StartRun(ctx context.Context, runID string, req models.Request, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO etl_runs (run_id, started_at, status, start_date, end_date)
		VALUES (?, ?, 'running', ?, ?)
	`, runID, startedAt, req.StartDate, req.EndDate)
	return err
}

// CompleteRun finalizes the audit row from the run summary.
func (s *Store) CompleteRun(ctx context.Context, summary models.RunSummary) error {
	errMsg := sql.NullString{String: summary.Error, Valid: summary.Error != ""}
	_, err := s.db.ExecContext(ctx, `
		UPDATE etl_runs SET
			completed_at = ?,
			status = ?,
			cache_hit = ?,
			rows_merged = ?,
			extraction_ms = ?,
			transform_ms = ?,
			loading_ms = ?,
			error_message = ?
		WHERE run_id = ?
	`, summary.CompletedAt, summary.Status, summary.CacheHit, summary.RowsMerged,
		summary.Extraction.Milliseconds(), summary.Transform.Milliseconds(),
		summary.Loading.Milliseconds(), errMsg, summary.RunID)
	return err
}

// RecentRuns returns the latest audit rows, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]EtlRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, completed_at, status, start_date, end_date,
		       cache_hit, rows_merged, extraction_ms, transform_ms, loading_ms, error_message
		FROM etl_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []EtlRun
	for rows.Next() {
		var r EtlRun
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.CompletedAt, &r.Status, &r.StartDate, &r.EndDate,
			&r.CacheHit, &r.RowsMerged, &r.ExtractionMS, &r.TransformMS, &r.LoadingMS, &r.ErrorMessage); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
