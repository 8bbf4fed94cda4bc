package transform

import (
	"database/sql"
	"math"
	"sort"
	"time"

	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

// Rolling-average windows for the per-route ridership trend columns.
const (
	rolling7Day  = 7 * 24 * time.Hour
	rolling30Day = 30 * 24 * time.Hour
)

// tempCategory buckets a Fahrenheit temperature. Bucket edges are inclusive
// on the upper bound.
func tempCategory(f float64) string {
	switch {
	case f <= 32:
		return "freezing"
	case f <= 50:
		return "cold"
	case f <= 68:
		return "mild"
	case f <= 85:
		return "warm"
	default:
		return "hot"
	}
}

// rainCategory buckets hourly precipitation in inches.
func rainCategory(in float64) string {
	switch {
	case in <= 0.01:
		return "none"
	case in <= 0.1:
		return "light"
	case in <= 0.5:
		return "moderate"
	default:
		return "heavy"
	}
}

// weatherImpact scores how far conditions sit from a comfortable baseline of
// 65F, dry and calm. Precipitation saturates at half an inch, wind at 25 mph;
// temperature discomfort is unbounded so extremes keep separating.
func weatherImpact(tempF, precipIn, windMPH float64) float64 {
	tempDiscomfort := math.Abs(tempF-65) / 30
	precip := math.Min(precipIn/0.5, 1)
	wind := math.Min(windMPH/25, 1)
	return tempDiscomfort*0.4 + precip*0.4 + wind*0.2
}

// applyWeatherCategories fills the categorical columns and the impact score.
// Each output stays null unless every input it reads is present.
func applyWeatherCategories(rec *models.MergedRecord) {
	if rec.TemperatureF.Valid {
		rec.TempCategory = sql.NullString{String: tempCategory(rec.TemperatureF.Float64), Valid: true}
	}
	if rec.PrecipitationIn.Valid {
		rec.RainCategory = sql.NullString{String: rainCategory(rec.PrecipitationIn.Float64), Valid: true}
	}
	if rec.TemperatureF.Valid && rec.PrecipitationIn.Valid && rec.WindSpeedMPH.Valid {
		rec.WeatherImpact = sql.NullFloat64{
			Float64: weatherImpact(rec.TemperatureF.Float64, rec.PrecipitationIn.Float64, rec.WindSpeedMPH.Float64),
			Valid:   true,
		}
	}
}

// applyRollingAverages fills the trailing 7- and 30-day per-route ridership
// means. The window is (ts-window, ts] over rows of the same route; a row
// with null ridership still receives the average of its window when any
// neighbor contributed a value.
func applyRollingAverages(records []models.MergedRecord) {
	byRoute := make(map[string][]int)
	for i := range records {
		byRoute[records[i].RouteID] = append(byRoute[records[i].RouteID], i)
	}

	for _, idxs := range byRoute {
		sort.Slice(idxs, func(a, b int) bool {
			return records[idxs[a]].Timestamp.Before(records[idxs[b]].Timestamp)
		})
		fillRolling(records, idxs, rolling7Day, func(rec *models.MergedRecord, v sql.NullFloat64) {
			rec.Ridership7Day = v
		})
		fillRolling(records, idxs, rolling30Day, func(rec *models.MergedRecord, v sql.NullFloat64) {
			rec.Ridership30Day = v
		})
	}
}

func fillRolling(records []models.MergedRecord, idxs []int, window time.Duration, set func(*models.MergedRecord, sql.NullFloat64)) {
	var sum float64
	var n int
	lo := 0

	for _, idx := range idxs {
		rec := &records[idx]
		if rec.Ridership.Valid {
			sum += float64(rec.Ridership.Int64)
			n++
		}

		cutoff := rec.Timestamp.Add(-window)
		for !records[idxs[lo]].Timestamp.After(cutoff) {
			if records[idxs[lo]].Ridership.Valid {
				sum -= float64(records[idxs[lo]].Ridership.Int64)
				n--
			}
			lo++
		}

		if n > 0 {
			set(rec, sql.NullFloat64{Float64: sum / float64(n), Valid: true})
		} else {
			set(rec, sql.NullFloat64{})
		}
	}
}
