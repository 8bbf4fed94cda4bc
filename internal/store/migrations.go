package store

import (
	"fmt"
	"log"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial warehouse schema",
		SQL: `
CREATE TABLE IF NOT EXISTS merged_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL,
    route_id TEXT NOT NULL,
    payment_method TEXT,
    fare_class TEXT,
    ridership INTEGER,
    transfers INTEGER,
    temperature_c REAL,
    precipitation_mm REAL,
    wind_speed REAL,
    condition TEXT,
    temperature_f REAL,
    precipitation_in REAL,
    wind_speed_mph REAL,
    year INTEGER NOT NULL,
    month INTEGER NOT NULL,
    day_of_week INTEGER NOT NULL,
    is_weekend BOOLEAN NOT NULL,
    temp_category TEXT,
    rain_category TEXT,
    weather_impact REAL,
    ridership_7day_avg REAL,
    ridership_30day_avg REAL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_merged_time ON merged_records(timestamp);
CREATE INDEX IF NOT EXISTS idx_merged_calendar ON merged_records(year, month);
CREATE INDEX IF NOT EXISTS idx_merged_dow ON merged_records(day_of_week);

CREATE TABLE IF NOT EXISTS etl_runs (
    run_id TEXT PRIMARY KEY,
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    status TEXT NOT NULL,
    start_date DATE NOT NULL,
    end_date DATE NOT NULL,
    cache_hit BOOLEAN,
    rows_merged INTEGER,
    extraction_ms INTEGER,
    transform_ms INTEGER,
    loading_ms INTEGER,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON etl_runs(started_at);
`,
	},
}

// Migrate applies pending schema migrations in order, recording each in
// schema_migrations.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`, m.Version, m.Description); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
		log.Printf("store: applied migration %d: %s", m.Version, m.Description)
	}
	return nil
}
