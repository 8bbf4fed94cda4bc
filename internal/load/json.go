package load

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

// JSONSink writes the merged dataset and its quality report as a single JSON
// document. Nullable columns serialize as null rather than zero values.
type JSONSink struct {
	Path string
}

func (s *JSONSink) Name() string { return "json" }

type jsonDocument struct {
	GeneratedAt   time.Time            `json:"generated_at"`
	RowCount      int                  `json:"row_count"`
	QualityReport models.QualityReport `json:"quality_report"`
	Records       []jsonRecord         `json:"records"`
}

type jsonRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	RouteID         string    `json:"route_id"`
	PaymentMethod   string    `json:"payment_method"`
	FareClass       string    `json:"fare_class"`
	Ridership       *int64    `json:"ridership"`
	Transfers       *int64    `json:"transfers"`
	TemperatureC    *float64  `json:"temperature_c"`
	PrecipitationMM *float64  `json:"precipitation_mm"`
	WindSpeed       *float64  `json:"wind_speed"`
	Condition       *string   `json:"condition"`
	TemperatureF    *float64  `json:"temperature_f"`
	PrecipitationIn *float64  `json:"precipitation_in"`
	WindSpeedMPH    *float64  `json:"wind_speed_mph"`
	Year            int       `json:"year"`
	Month           int       `json:"month"`
	DayOfWeek       int       `json:"day_of_week"`
	IsWeekend       bool      `json:"is_weekend"`
	TempCategory    *string   `json:"temp_category"`
	RainCategory    *string   `json:"rain_category"`
	WeatherImpact   *float64  `json:"weather_impact"`
	Ridership7Day   *float64  `json:"ridership_7day_avg"`
	Ridership30Day  *float64  `json:"ridership_30day_avg"`
}

func (s *JSONSink) Write(ctx context.Context, records []models.MergedRecord, report models.QualityReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	doc := jsonDocument{
		GeneratedAt:   time.Now().UTC(),
		RowCount:      len(records),
		QualityReport: report,
		Records:       make([]jsonRecord, 0, len(records)),
	}
	for _, rec := range records {
		doc.Records = append(doc.Records, toJSONRecord(rec))
	}

	f, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("create %q: %w", s.Path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return f.Close()
}

func toJSONRecord(rec models.MergedRecord) jsonRecord {
	out := jsonRecord{
		Timestamp:     rec.Timestamp.UTC(),
		RouteID:       rec.RouteID,
		PaymentMethod: rec.PaymentMethod,
		FareClass:     rec.FareClass,
		Year:          rec.Year,
		Month:         rec.Month,
		DayOfWeek:     rec.DayOfWeek,
		IsWeekend:     rec.IsWeekend,
	}
	if rec.Ridership.Valid {
		out.Ridership = &rec.Ridership.Int64
	}
	if rec.Transfers.Valid {
		out.Transfers = &rec.Transfers.Int64
	}
	if rec.TemperatureC.Valid {
		out.TemperatureC = &rec.TemperatureC.Float64
	}
	if rec.PrecipitationMM.Valid {
		out.PrecipitationMM = &rec.PrecipitationMM.Float64
	}
	if rec.WindSpeed.Valid {
		out.WindSpeed = &rec.WindSpeed.Float64
	}
	if rec.Condition.Valid {
		out.Condition = &rec.Condition.String
	}
	if rec.TemperatureF.Valid {
		out.TemperatureF = &rec.TemperatureF.Float64
	}
	if rec.PrecipitationIn.Valid {
		out.PrecipitationIn = &rec.PrecipitationIn.Float64
	}
	if rec.WindSpeedMPH.Valid {
		out.WindSpeedMPH = &rec.WindSpeedMPH.Float64
	}
	if rec.TempCategory.Valid {
		out.TempCategory = &rec.TempCategory.String
	}
	if rec.RainCategory.Valid {
		out.RainCategory = &rec.RainCategory.String
	}
	if rec.WeatherImpact.Valid {
		out.WeatherImpact = &rec.WeatherImpact.Float64
	}
	if rec.Ridership7Day.Valid {
		out.Ridership7Day = &rec.Ridership7Day.Float64
	}
	if rec.Ridership30Day.Valid {
		out.Ridership30Day = &rec.Ridership30Day.Float64
	}
	return out
}
