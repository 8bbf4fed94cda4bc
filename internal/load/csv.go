package load

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

// CSVSink writes the merged dataset to a local CSV file. Nullable columns
// serialize as empty cells so the schema stays identical across sinks.
type CSVSink struct {
	Path string
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Write(ctx context.Context, records []models.MergedRecord, _ models.QualityReport) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("create %q: %w", s.Path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(models.Columns()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Write(csvRow(rec)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func csvRow(rec models.MergedRecord) []string {
	return []string{
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.RouteID,
		rec.PaymentMethod,
		rec.FareClass,
		nullInt(rec.Ridership),
		nullInt(rec.Transfers),
		nullFloat(rec.TemperatureC),
		nullFloat(rec.PrecipitationMM),
		nullFloat(rec.WindSpeed),
		nullString(rec.Condition),
		nullFloat(rec.TemperatureF),
		nullFloat(rec.PrecipitationIn),
		nullFloat(rec.WindSpeedMPH),
		strconv.Itoa(rec.Year),
		strconv.Itoa(rec.Month),
		strconv.Itoa(rec.DayOfWeek),
		strconv.FormatBool(rec.IsWeekend),
		nullString(rec.TempCategory),
		nullString(rec.RainCategory),
		nullFloat(rec.WeatherImpact),
		nullFloat(rec.Ridership7Day),
		nullFloat(rec.Ridership30Day),
	}
}
