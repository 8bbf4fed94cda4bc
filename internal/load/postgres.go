package load

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

const pgBatchSize = 500

// PostgresSink loads the dataset into a Postgres warehouse using batched
// multi-row inserts. Like the SQLite sink it replaces the request's date
// range inside a single transaction.
type PostgresSink struct {
	db    *sql.DB
	start time.Time
	end   time.Time
}

func NewPostgresSink(connStr string, start, end time.Time) (*PostgresSink, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresSink{db: db, start: start, end: end}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Close() error { return s.db.Close() }

func (s *PostgresSink) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS merged_records (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			route_id TEXT NOT NULL,
			payment_method TEXT,
			fare_class TEXT,
			ridership BIGINT,
			transfers BIGINT,
			temperature_c DOUBLE PRECISION,
			precipitation_mm DOUBLE PRECISION,
			wind_speed DOUBLE PRECISION,
			condition TEXT,
			temperature_f DOUBLE PRECISION,
			precipitation_in DOUBLE PRECISION,
			wind_speed_mph DOUBLE PRECISION,
			year INT NOT NULL,
			month INT NOT NULL,
			day_of_week INT NOT NULL,
			is_weekend BOOLEAN NOT NULL,
			temp_category TEXT,
			rain_category TEXT,
			weather_impact DOUBLE PRECISION,
			ridership_7day_avg DOUBLE PRECISION,
			ridership_30day_avg DOUBLE PRECISION,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_pg_merged_time ON merged_records(timestamp);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) Write(ctx context.Context, records []models.MergedRecord, _ models.QualityReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM merged_records WHERE timestamp >= $1 AND timestamp <= $2`, s.start, s.end); err != nil {
		return fmt.Errorf("clear range: %w", err)
	}

	for offset := 0; offset < len(records); offset += pgBatchSize {
		end := offset + pgBatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := insertBatch(ctx, tx, records[offset:end]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	log.Printf("load: postgres: inserted %d rows in batches of %d", len(records), pgBatchSize)
	return nil
}

func insertBatch(ctx context.Context, tx *sql.Tx, batch []models.MergedRecord) error {
	const cols = 22
	placeholders := make([]string, 0, len(batch))
	args := make([]interface{}, 0, len(batch)*cols)

	for i, rec := range batch {
		base := i * cols
		marks := make([]string, cols)
		for j := range marks {
			marks[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(marks, ", ")+")")
		args = append(args,
			rec.Timestamp, rec.RouteID, rec.PaymentMethod, rec.FareClass, rec.Ridership, rec.Transfers,
			rec.TemperatureC, rec.PrecipitationMM, rec.WindSpeed, rec.Condition,
			rec.TemperatureF, rec.PrecipitationIn, rec.WindSpeedMPH,
			rec.Year, rec.Month, rec.DayOfWeek, rec.IsWeekend,
			rec.TempCategory, rec.RainCategory, rec.WeatherImpact,
			rec.Ridership7Day, rec.Ridership30Day,
		)
	}

	query := `
		INSERT INTO merged_records (
			timestamp, route_id, payment_method, fare_class, ridership, transfers,
			temperature_c, precipitation_mm, wind_speed, condition,
			temperature_f, precipitation_in, wind_speed_mph,
			year, month, day_of_week, is_weekend,
			temp_category, rain_category, weather_impact,
			ridership_7day_avg, ridership_30day_avg
		) VALUES ` + strings.Join(placeholders, ", ")

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}
