package transform

import (
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

func TestTempCategory(t *testing.T) {
	tests := []struct {
		f    float64
		want string
	}{
		{-10, "freezing"},
		{32, "freezing"},
		{33, "cold"},
		{50, "cold"},
		{68, "mild"},
		{85, "warm"},
		{95, "hot"},
	}
	for _, tt := range tests {
		if got := tempCategory(tt.f); got != tt.want {
			t.Errorf("tempCategory(%v) = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestRainCategory(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "none"},
		{0.01, "none"},
		{0.05, "light"},
		{0.1, "light"},
		{0.5, "moderate"},
		{1.0, "heavy"},
	}
	for _, tt := range tests {
		if got := rainCategory(tt.in); got != tt.want {
			t.Errorf("rainCategory(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWeatherImpact(t *testing.T) {
	// 65F, dry and calm is the comfortable baseline.
	if got := weatherImpact(65, 0, 0); got != 0 {
		t.Errorf("weatherImpact(65, 0, 0) = %v, want 0", got)
	}
	// 95F, half an inch of rain and saturated wind maxes every term:
	// 1.0*0.4 + 1.0*0.4 + 1.0*0.2.
	if got := weatherImpact(95, 0.5, 30); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("weatherImpact(95, 0.5, 30) = %v, want 1.0", got)
	}
	// Precipitation and wind saturate; temperature discomfort does not.
	if got := weatherImpact(65, 5, 100); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("weatherImpact(65, 5, 100) = %v, want 0.6", got)
	}
}

func TestTransformWeatherCategories(t *testing.T) {
	hour := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	ridership := []models.RidershipRecord{rider(hour, "M15", 100)}
	// 35C -> 95F ("hot"), 12.7mm -> 0.5in ("moderate"), 100km/h -> 62.1mph.
	weather := []models.WeatherRecord{{
		ObservationTime: hour,
		TemperatureC:    sql.NullFloat64{Float64: 35, Valid: true},
		PrecipitationMM: sql.NullFloat64{Float64: 12.7, Valid: true},
		WindSpeed:       sql.NullFloat64{Float64: 100, Valid: true},
		Condition:       sql.NullString{String: "storm", Valid: true},
	}}

	merged, _, err := Transform(ridership, weather)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	rec := merged[0]

	if got := rec.TempCategory.String; !rec.TempCategory.Valid || got != "hot" {
		t.Errorf("TempCategory = %+v, want valid %q", rec.TempCategory, "hot")
	}
	if got := rec.RainCategory.String; !rec.RainCategory.Valid || got != "moderate" {
		t.Errorf("RainCategory = %+v, want valid %q", rec.RainCategory, "moderate")
	}
	if !rec.WeatherImpact.Valid || math.Abs(rec.WeatherImpact.Float64-1.0) > 1e-9 {
		t.Errorf("WeatherImpact = %+v, want valid 1.0", rec.WeatherImpact)
	}
}

func TestTransformCategoriesNullWithoutWeather(t *testing.T) {
	hour := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	merged, _, err := Transform([]models.RidershipRecord{rider(hour, "M15", 100)}, nil)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	rec := merged[0]
	if rec.TempCategory.Valid || rec.RainCategory.Valid || rec.WeatherImpact.Valid {
		t.Errorf("categories = %+v/%+v/%+v, want all null without weather",
			rec.TempCategory, rec.RainCategory, rec.WeatherImpact)
	}
}

func TestRollingAveragesWindow(t *testing.T) {
	day0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	ridership := []models.RidershipRecord{
		rider(day0, "M15", 100),
		rider(day0.Add(time.Hour), "M15", 200),
		rider(day0.AddDate(0, 0, 8), "M15", 300), // outside the 7-day window
	}

	merged, _, err := Transform(ridership, nil)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	if got := merged[0].Ridership7Day.Float64; !merged[0].Ridership7Day.Valid || got != 100 {
		t.Errorf("row 0 7-day avg = %+v, want valid 100", merged[0].Ridership7Day)
	}
	if got := merged[1].Ridership7Day.Float64; !merged[1].Ridership7Day.Valid || got != 150 {
		t.Errorf("row 1 7-day avg = %+v, want valid 150", merged[1].Ridership7Day)
	}
	// Day 8: the first two rows fell out of the 7-day window.
	if got := merged[2].Ridership7Day.Float64; !merged[2].Ridership7Day.Valid || got != 300 {
		t.Errorf("row 2 7-day avg = %+v, want valid 300", merged[2].Ridership7Day)
	}
	// The 30-day window still holds all three rows.
	if got := merged[2].Ridership30Day.Float64; !merged[2].Ridership30Day.Valid || got != 200 {
		t.Errorf("row 2 30-day avg = %+v, want valid 200", merged[2].Ridership30Day)
	}
}

func TestRollingAveragesPerRoute(t *testing.T) {
	hour := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	ridership := []models.RidershipRecord{
		rider(hour, "M15", 100),
		rider(hour, "B41", 500),
		rider(hour.Add(time.Hour), "M15", 200),
	}

	merged, _, err := Transform(ridership, nil)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	// Routes never mix: B41's 500 does not pull on M15's average.
	if got := merged[2].Ridership7Day.Float64; got != 150 {
		t.Errorf("M15 7-day avg = %v, want 150", got)
	}
	if got := merged[1].Ridership7Day.Float64; got != 500 {
		t.Errorf("B41 7-day avg = %v, want 500", got)
	}
}

func TestRollingAveragesNullRidership(t *testing.T) {
	hour := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	missing := models.RidershipRecord{
		Timestamp:     hour.Add(time.Hour),
		RouteID:       "M15",
		PaymentMethod: "omny",
		FareClass:     "full fare",
	}
	ridership := []models.RidershipRecord{rider(hour, "M15", 100), missing}

	merged, _, err := Transform(ridership, nil)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	// The null row still averages its window neighbors.
	if got := merged[1].Ridership7Day.Float64; !merged[1].Ridership7Day.Valid || got != 100 {
		t.Errorf("7-day avg over null row = %+v, want valid 100", merged[1].Ridership7Day)
	}

	// A lone null row has no window values at all.
	merged, _, err = Transform([]models.RidershipRecord{missing}, nil)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if merged[0].Ridership7Day.Valid {
		t.Errorf("7-day avg = %+v, want null with no ridership in window", merged[0].Ridership7Day)
	}
}
