package transform

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

// JoinTolerance is how far back a weather observation may lie from a
// ridership timestamp and still count as a match. One hour matches the
// hourly granularity of both sources.
const JoinTolerance = time.Hour

// TransformError reports a required column absent from an input dataset.
type TransformError struct {
	Column string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform: required column %q missing from input", e.Column)
}

// Transform normalizes both datasets, joins each ridership row to the
// nearest prior-or-equal weather observation within JoinTolerance, computes
// derived calendar columns, and scores the result.
//
// The join is left-outer: every ridership row appears exactly once in the
// output; unmatched rows keep null weather columns. Empty inputs are not an
// error and produce an empty dataset with TotalRows=0.
func Transform(ridership []models.RidershipRecord, weather []models.WeatherRecord) ([]models.MergedRecord, models.QualityReport, error) {
	if err := checkSchema(ridership, weather); err != nil {
		return nil, models.QualityReport{}, err
	}

	// Sort observations once; the join walks them via binary search.
	obs := make([]models.WeatherRecord, len(weather))
	copy(obs, weather)
	sort.Slice(obs, func(i, j int) bool {
		return obs[i].ObservationTime.Before(obs[j].ObservationTime)
	})

	merged := make([]models.MergedRecord, 0, len(ridership))
	matched := 0
	for _, r := range ridership {
		rec := models.MergedRecord{
			Timestamp:     r.Timestamp,
			RouteID:       r.RouteID,
			PaymentMethod: r.PaymentMethod,
			FareClass:     r.FareClass,
			Ridership:     r.Ridership,
			Transfers:     r.Transfers,
		}

		if w, ok := matchWeather(obs, r.Timestamp); ok {
			rec.TemperatureC = w.TemperatureC
			rec.PrecipitationMM = w.PrecipitationMM
			rec.WindSpeed = w.WindSpeed
			rec.Condition = w.Condition
			matched++
		}

		applyDerived(&rec)
		applyWeatherCategories(&rec)
		merged = append(merged, rec)
	}

	applyRollingAverages(merged)

	report := Score(merged)
	log.Printf("transform: merged %d rows (%d with weather, %d without)",
		len(merged), matched, len(merged)-matched)
	return merged, report, nil
}

// checkSchema detects a source column absent upstream: a non-empty dataset
// where no row carried a parseable time key.
func checkSchema(ridership []models.RidershipRecord, weather []models.WeatherRecord) error {
	if len(ridership) > 0 && allZeroRidership(ridership) {
		return &TransformError{Column: "transit_timestamp"}
	}
	if len(weather) > 0 && allZeroWeather(weather) {
		return &TransformError{Column: "observation_time"}
	}
	return nil
}

func allZeroRidership(rs []models.RidershipRecord) bool {
	for _, r := range rs {
		if !r.Timestamp.IsZero() {
			return false
		}
	}
	return true
}

func allZeroWeather(ws []models.WeatherRecord) bool {
	for _, w := range ws {
		if !w.ObservationTime.IsZero() {
			return false
		}
	}
	return true
}

// matchWeather finds the nearest observation at or before ts within
// JoinTolerance. obs must be sorted ascending by ObservationTime.
func matchWeather(obs []models.WeatherRecord, ts time.Time) (models.WeatherRecord, bool) {
	// First index with observation time strictly after ts.
	i := sort.Search(len(obs), func(i int) bool {
		return obs[i].ObservationTime.After(ts)
	})
	if i == 0 {
		return models.WeatherRecord{}, false
	}
	cand := obs[i-1]
	if ts.Sub(cand.ObservationTime) > JoinTolerance {
		return models.WeatherRecord{}, false
	}
	return cand, true
}

// applyDerived fills the calendar columns and unit conversions.
// Day-of-week uses the 0=Monday convention; weekends are {5, 6}.
func applyDerived(rec *models.MergedRecord) {
	ts := rec.Timestamp
	rec.Year = ts.Year()
	rec.Month = int(ts.Month())
	rec.DayOfWeek = (int(ts.Weekday()) + 6) % 7
	rec.IsWeekend = rec.DayOfWeek == 5 || rec.DayOfWeek == 6

	if rec.TemperatureC.Valid {
		rec.TemperatureF = sql.NullFloat64{Float64: rec.TemperatureC.Float64*9/5 + 32, Valid: true}
	}
	if rec.PrecipitationMM.Valid {
		rec.PrecipitationIn = sql.NullFloat64{Float64: rec.PrecipitationMM.Float64 / 25.4, Valid: true}
	}
	if rec.WindSpeed.Valid {
		rec.WindSpeedMPH = sql.NullFloat64{Float64: rec.WindSpeed.Float64 * 0.621371, Valid: true}
	}
}
