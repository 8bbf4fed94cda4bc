package models

import (
	"database/sql"
	"fmt"
	"time"
)

// RidershipRecord is one hourly ridership observation from the transit API.
// Numeric fields are nullable because the upstream API serves them as strings
// and coercion failures are recorded as missing rather than rejected.
type RidershipRecord struct {
	Timestamp     time.Time
	RouteID       string
	PaymentMethod string
	FareClass     string
	Ridership     sql.NullInt64
	Transfers     sql.NullInt64
}

// WeatherRecord is one hourly weather observation from the archive API.
type WeatherRecord struct {
	ObservationTime time.Time
	TemperatureC    sql.NullFloat64
	PrecipitationMM sql.NullFloat64
	WindSpeed       sql.NullFloat64 // km/h as served by the archive API
	Condition       sql.NullString  // "clear", "cloudy", "fog", "rain", "snow", "storm", "unknown"
}

// MergedRecord joins a ridership observation with its nearest-in-time weather
// observation plus derived calendar fields. Weather fields stay null when no
// observation matched within tolerance.
type MergedRecord struct {
	Timestamp     time.Time
	RouteID       string
	PaymentMethod string
	FareClass     string
	Ridership     sql.NullInt64
	Transfers     sql.NullInt64

	TemperatureC    sql.NullFloat64
	PrecipitationMM sql.NullFloat64
	WindSpeed       sql.NullFloat64
	Condition       sql.NullString

	// Unit conversions, null when the metric source field is null.
	TemperatureF    sql.NullFloat64
	PrecipitationIn sql.NullFloat64
	WindSpeedMPH    sql.NullFloat64

	Year      int
	Month     int
	DayOfWeek int // 0=Monday .. 6=Sunday
	IsWeekend bool

	// Analytics enrichments, null when their weather inputs are null.
	TempCategory  sql.NullString  // "freezing", "cold", "mild", "warm", "hot"
	RainCategory  sql.NullString  // "none", "light", "moderate", "heavy"
	WeatherImpact sql.NullFloat64 // 0 = comfortable, higher = worse conditions

	// Trailing per-route ridership averages; null when no ridership value
	// fell inside the window.
	Ridership7Day  sql.NullFloat64
	Ridership30Day sql.NullFloat64
}

// Columns lists the merged schema in output order. Sinks and the quality
// report use the same listing so the column set is identical everywhere.
func Columns() []string {
	return []string{
		"timestamp", "route_id", "payment_method", "fare_class", "ridership", "transfers",
		"temperature_c", "precipitation_mm", "wind_speed", "condition",
		"temperature_f", "precipitation_in", "wind_speed_mph",
		"year", "month", "day_of_week", "is_weekend",
		"temp_category", "rain_category", "weather_impact",
		"ridership_7day_avg", "ridership_30day_avg",
	}
}

// QualityReport summarizes a merged dataset snapshot. It is observational
// only and is recomputed on every transform.
type QualityReport struct {
	TotalRows       int            `json:"total_rows"`
	DuplicateRows   int            `json:"duplicate_rows"`
	MissingByColumn map[string]int `json:"missing_by_column"`
	Columns         []string       `json:"columns"`
}

// Request identifies one pipeline invocation. The full parameter set forms
// the cache key: identical requests must hit the same cache entry.
type Request struct {
	StartDate time.Time
	EndDate   time.Time
	Latitude  float64
	Longitude float64
	RowLimit  int

	RidershipSource string
	WeatherSource   string

	// AllowPartialWeather degrades a failed weather fetch to a
	// ridership-only dataset with null weather columns instead of
	// failing the whole request.
	AllowPartialWeather bool
}

// Validate checks the request parameters before any network call.
func (r Request) Validate() error {
	if r.StartDate.After(r.EndDate) {
		return fmt.Errorf("start date %s after end date %s",
			r.StartDate.Format("2006-01-02"), r.EndDate.Format("2006-01-02"))
	}
	if r.RowLimit <= 0 {
		return fmt.Errorf("row limit must be positive, got %d", r.RowLimit)
	}
	return nil
}

// RunSummary captures per-phase timings and outcomes of one pipeline run.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Status      string        `json:"status"` // "running", "succeeded" or "failed"
	CacheHit    bool          `json:"cache_hit"`
	RowsMerged  int           `json:"rows_merged"`
	Extraction  time.Duration `json:"extraction_ns"`
	Transform   time.Duration `json:"transform_ns"`
	Loading     time.Duration `json:"loading_ns"`
	Error       string        `json:"error,omitempty"`
}
