package transform

import (
	"fmt"
	"strings"

	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

// Score computes the quality report for a merged dataset snapshot.
// Duplicates are detected by full-row equality; missing counts cover the
// nullable columns. The dataset itself is never mutated.
func Score(records []models.MergedRecord) models.QualityReport {
	report := models.QualityReport{
		TotalRows:       len(records),
		MissingByColumn: make(map[string]int),
		Columns:         models.Columns(),
	}

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		key := rowKey(rec)
		if _, dup := seen[key]; dup {
			report.DuplicateRows++
		} else {
			seen[key] = struct{}{}
		}

		countMissing(report.MissingByColumn, rec)
	}
	return report
}

func countMissing(missing map[string]int, rec models.MergedRecord) {
	if !rec.Ridership.Valid {
		missing["ridership"]++
	}
	if !rec.Transfers.Valid {
		missing["transfers"]++
	}
	if !rec.TemperatureC.Valid {
		missing["temperature_c"]++
	}
	if !rec.PrecipitationMM.Valid {
		missing["precipitation_mm"]++
	}
	if !rec.WindSpeed.Valid {
		missing["wind_speed"]++
	}
	if !rec.Condition.Valid {
		missing["condition"]++
	}
	if !rec.TemperatureF.Valid {
		missing["temperature_f"]++
	}
	if !rec.PrecipitationIn.Valid {
		missing["precipitation_in"]++
	}
	if !rec.WindSpeedMPH.Valid {
		missing["wind_speed_mph"]++
	}
	if !rec.TempCategory.Valid {
		missing["temp_category"]++
	}
	if !rec.RainCategory.Valid {
		missing["rain_category"]++
	}
	if !rec.WeatherImpact.Valid {
		missing["weather_impact"]++
	}
	if !rec.Ridership7Day.Valid {
		missing["ridership_7day_avg"]++
	}
	if !rec.Ridership30Day.Valid {
		missing["ridership_30day_avg"]++
	}
}

// rowKey serializes every column so two rows compare equal exactly when all
// fields match.
func rowKey(rec models.MergedRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s|%s|%s|", rec.Timestamp.UnixNano(), rec.RouteID, rec.PaymentMethod, rec.FareClass)
	fmt.Fprintf(&b, "%v %d|%v %d|", rec.Ridership.Valid, rec.Ridership.Int64, rec.Transfers.Valid, rec.Transfers.Int64)
	fmt.Fprintf(&b, "%v %g|%v %g|%v %g|%v %s",
		rec.TemperatureC.Valid, rec.TemperatureC.Float64,
		rec.PrecipitationMM.Valid, rec.PrecipitationMM.Float64,
		rec.WindSpeed.Valid, rec.WindSpeed.Float64,
		rec.Condition.Valid, rec.Condition.String)
	return b.String()
}
