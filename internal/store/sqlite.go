package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

// Store is the SQLite warehouse holding merged datasets and the run audit.
// It is also the read-only query boundary the dashboard consumes.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// ReplaceRange deletes any previously loaded rows whose timestamps fall in
// [start, end] and inserts the new dataset in one transaction, so re-running
// a request never double-loads.
func (s *Store) ReplaceRange(ctx context.Context, start, end time.Time, records []models.MergedRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM merged_records WHERE timestamp >= ? AND timestamp <= ?`, start, end); err != nil {
		return fmt.Errorf("clear range: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO merged_records (
			timestamp, route_id, payment_method, fare_class, ridership, transfers,
			temperature_c, precipitation_mm, wind_speed, condition,
			temperature_f, precipitation_in, wind_speed_mph,
			year, month, day_of_week, is_weekend,
			temp_category, rain_category, weather_impact,
			ridership_7day_avg, ridership_30day_avg
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.Timestamp, rec.RouteID, rec.PaymentMethod, rec.FareClass, rec.Ridership, rec.Transfers,
			rec.TemperatureC, rec.PrecipitationMM, rec.WindSpeed, rec.Condition,
			rec.TemperatureF, rec.PrecipitationIn, rec.WindSpeedMPH,
			rec.Year, rec.Month, rec.DayOfWeek, rec.IsWeekend,
			rec.TempCategory, rec.RainCategory, rec.WeatherImpact,
			rec.Ridership7Day, rec.Ridership30Day,
		); err != nil {
			return fmt.Errorf("insert merged row: %w", err)
		}
	}

	return tx.Commit()
}

// Filter holds the pushdown predicates the dashboard boundary supports.
// Nil pointer fields are unconstrained; predicates compile straight into the
// WHERE clause rather than filtering rows in Go.
type Filter struct {
	Year      *int
	Month     *int
	DayOfWeek *int
	RouteID   string
	Start     *time.Time
	End       *time.Time
	Limit     int
}

func (f Filter) whereClause() (string, []interface{}) {
	var conds []string
	var args []interface{}

	if f.Year != nil {
		conds = append(conds, "year = ?")
		args = append(args, *f.Year)
	}
	if f.Month != nil {
		conds = append(conds, "month = ?")
		args = append(args, *f.Month)
	}
	if f.DayOfWeek != nil {
		conds = append(conds, "day_of_week = ?")
		args = append(args, *f.DayOfWeek)
	}
	if f.RouteID != "" {
		conds = append(conds, "route_id = ?")
		args = append(args, f.RouteID)
	}
	if f.Start != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, *f.Start)
	}
	if f.End != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, *f.End)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// QueryMerged returns merged rows matching the filter, ordered by timestamp.
func (s *Store) QueryMerged(ctx context.Context, f Filter) ([]models.MergedRecord, error) {
	where, args := f.whereClause()

	query := `
		SELECT timestamp, route_id, payment_method, fare_class, ridership, transfers,
		       temperature_c, precipitation_mm, wind_speed, condition,
		       temperature_f, precipitation_in, wind_speed_mph,
		       year, month, day_of_week, is_weekend,
		       temp_category, rain_category, weather_impact,
		       ridership_7day_avg, ridership_30day_avg
		FROM merged_records` + where
	query += " ORDER BY timestamp ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.MergedRecord
	for rows.Next() {
		var rec models.MergedRecord
		if err := rows.Scan(
			&rec.Timestamp, &rec.RouteID, &rec.PaymentMethod, &rec.FareClass, &rec.Ridership, &rec.Transfers,
			&rec.TemperatureC, &rec.PrecipitationMM, &rec.WindSpeed, &rec.Condition,
			&rec.TemperatureF, &rec.PrecipitationIn, &rec.WindSpeedMPH,
			&rec.Year, &rec.Month, &rec.DayOfWeek, &rec.IsWeekend,
			&rec.TempCategory, &rec.RainCategory, &rec.WeatherImpact,
			&rec.Ridership7Day, &rec.Ridership30Day,
		); err != nil {
			return nil, err
		}
		rec.Timestamp = rec.Timestamp.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountMerged returns the number of stored rows matching the filter.
func (s *Store) CountMerged(ctx context.Context, f Filter) (int, error) {
	where, args := f.whereClause()
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM merged_records`+where, args...).Scan(&count)
	return count, err
}
