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

// SummarySink writes a small summary-statistics CSV next to the main export:
// row counts, date coverage, averages and the weather match rate. Analysts
// read this file before deciding whether the full dataset is worth pulling.
type SummarySink struct {
	Path string
}

func (s *SummarySink) Name() string { return "summary" }

func (s *SummarySink) Write(ctx context.Context, records []models.MergedRecord, report models.QualityReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("create %q: %w", s.Path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, row := range summaryRows(records, report) {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func summaryRows(records []models.MergedRecord, report models.QualityReport) [][]string {
	rows := [][]string{
		{"metric", "value"},
		{"total_rows", strconv.Itoa(report.TotalRows)},
		{"duplicate_rows", strconv.Itoa(report.DuplicateRows)},
	}

	if len(records) == 0 {
		return rows
	}

	first, last := records[0].Timestamp, records[0].Timestamp
	var riderSum, riderN int64
	var tempSum float64
	var tempN, matched int
	for _, rec := range records {
		if rec.Timestamp.Before(first) {
			first = rec.Timestamp
		}
		if rec.Timestamp.After(last) {
			last = rec.Timestamp
		}
		if rec.Ridership.Valid {
			riderSum += rec.Ridership.Int64
			riderN++
		}
		if rec.TemperatureF.Valid {
			tempSum += rec.TemperatureF.Float64
			tempN++
		}
		if rec.TemperatureC.Valid || rec.PrecipitationMM.Valid || rec.WindSpeed.Valid {
			matched++
		}
	}

	rows = append(rows,
		[]string{"first_timestamp", first.UTC().Format(time.RFC3339)},
		[]string{"last_timestamp", last.UTC().Format(time.RFC3339)},
		[]string{"weather_match_rate", strconv.FormatFloat(float64(matched)/float64(len(records)), 'f', 4, 64)},
	)
	if riderN > 0 {
		rows = append(rows, []string{"avg_ridership", strconv.FormatFloat(float64(riderSum)/float64(riderN), 'f', 2, 64)})
	}
	if tempN > 0 {
		rows = append(rows, []string{"avg_temperature_f", strconv.FormatFloat(tempSum/float64(tempN), 'f', 2, 64)})
	}
	return rows
}
