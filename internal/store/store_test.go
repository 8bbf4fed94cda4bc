package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(db)
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func sampleRecord(ts time.Time, route string, riders int64) models.MergedRecord {
	return models.MergedRecord{
		Timestamp:       ts,
		RouteID:         route,
		PaymentMethod:   "omny",
		FareClass:       "full fare",
		Ridership:       sql.NullInt64{Int64: riders, Valid: true},
		Transfers:       sql.NullInt64{Int64: 2, Valid: true},
		TemperatureC:    sql.NullFloat64{Float64: 5.5, Valid: true},
		TemperatureF:    sql.NullFloat64{Float64: 41.9, Valid: true},
		TempCategory:    sql.NullString{String: "cold", Valid: true},
		Ridership7Day:   sql.NullFloat64{Float64: float64(riders), Valid: true},
		Year:            ts.Year(),
		Month:           int(ts.Month()),
		DayOfWeek:       (int(ts.Weekday()) + 6) % 7,
		IsWeekend:       false,
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	s := New(db)
	if err := s.Migrate(); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var version int
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}
}

func TestReplaceRangeRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	records := []models.MergedRecord{
		sampleRecord(start, "M15", 100),
		sampleRecord(start.Add(time.Hour), "M15", 110),
	}

	if err := s.ReplaceRange(ctx, start, end, records); err != nil {
		t.Fatalf("ReplaceRange() error = %v", err)
	}

	got, err := s.QueryMerged(ctx, Filter{})
	if err != nil {
		t.Fatalf("QueryMerged() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].RouteID != "M15" {
		t.Errorf("RouteID = %q, want M15", got[0].RouteID)
	}
	if !got[0].Ridership.Valid || got[0].Ridership.Int64 != 100 {
		t.Errorf("Ridership = %+v, want valid 100", got[0].Ridership)
	}
	if !got[0].Timestamp.Equal(start) {
		t.Errorf("Timestamp = %v, want %v", got[0].Timestamp, start)
	}
	// PrecipitationMM was null going in and must come back null.
	if got[0].PrecipitationMM.Valid {
		t.Errorf("PrecipitationMM = %+v, want null", got[0].PrecipitationMM)
	}
	if !got[0].TempCategory.Valid || got[0].TempCategory.String != "cold" {
		t.Errorf("TempCategory = %+v, want valid cold", got[0].TempCategory)
	}
	if !got[0].Ridership7Day.Valid || got[0].Ridership7Day.Float64 != 100 {
		t.Errorf("Ridership7Day = %+v, want valid 100", got[0].Ridership7Day)
	}
	if got[0].RainCategory.Valid {
		t.Errorf("RainCategory = %+v, want null", got[0].RainCategory)
	}
}

func TestReplaceRangeIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	records := []models.MergedRecord{sampleRecord(start, "M15", 100)}

	for i := 0; i < 3; i++ {
		if err := s.ReplaceRange(ctx, start, end, records); err != nil {
			t.Fatalf("ReplaceRange() #%d error = %v", i, err)
		}
	}

	count, err := s.CountMerged(ctx, Filter{})
	if err != nil {
		t.Fatalf("CountMerged() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (re-runs must not double-load)", count)
	}
}

func TestQueryMergedFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	jan := time.Date(2024, 1, 6, 8, 0, 0, 0, time.UTC) // Saturday
	mar := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC) // Monday
	records := []models.MergedRecord{
		sampleRecord(jan, "M15", 50),
		sampleRecord(mar, "M15", 100),
		sampleRecord(mar.Add(time.Hour), "B41", 70),
	}
	if err := s.ReplaceRange(ctx, jan, mar.Add(2*time.Hour), records); err != nil {
		t.Fatalf("ReplaceRange() error = %v", err)
	}

	month := 3
	got, err := s.QueryMerged(ctx, Filter{Month: &month})
	if err != nil {
		t.Fatalf("QueryMerged(month) error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("month filter: len = %d, want 2", len(got))
	}

	got, err = s.QueryMerged(ctx, Filter{RouteID: "B41"})
	if err != nil {
		t.Fatalf("QueryMerged(route) error = %v", err)
	}
	if len(got) != 1 || got[0].RouteID != "B41" {
		t.Errorf("route filter: got %v", got)
	}

	dow := 0
	count, err := s.CountMerged(ctx, Filter{DayOfWeek: &dow})
	if err != nil {
		t.Fatalf("CountMerged(dow) error = %v", err)
	}
	if count != 2 {
		t.Errorf("dow filter count = %d, want 2 (both Monday rows)", count)
	}

	got, err = s.QueryMerged(ctx, Filter{Limit: 1})
	if err != nil {
		t.Fatalf("QueryMerged(limit) error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("limit filter: len = %d, want 1", len(got))
	}
	if !got[0].Timestamp.Equal(jan) {
		t.Errorf("ordering: first row = %v, want earliest %v", got[0].Timestamp, jan)
	}
}

func TestRunAudit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	req := models.Request{
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC),
		RowLimit:  1000,
	}
	started := time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC)

	if err := s.StartRun(ctx, "run-1", req, started); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	summary := models.RunSummary{
		RunID:       "run-1",
		StartedAt:   started,
		CompletedAt: started.Add(90 * time.Second),
		Status:      "succeeded",
		CacheHit:    false,
		RowsMerged:  1234,
		Extraction:  40 * time.Second,
		Transform:   2 * time.Second,
		Loading:     5 * time.Second,
	}
	if err := s.CompleteRun(ctx, summary); err != nil {
		t.Fatalf("CompleteRun() error = %v", err)
	}

	runs, err := s.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	r := runs[0]
	if r.Status != "succeeded" {
		t.Errorf("Status = %q, want succeeded", r.Status)
	}
	if !r.RowsMerged.Valid || r.RowsMerged.Int64 != 1234 {
		t.Errorf("RowsMerged = %+v, want valid 1234", r.RowsMerged)
	}
	if !r.ExtractionMS.Valid || r.ExtractionMS.Int64 != 40000 {
		t.Errorf("ExtractionMS = %+v, want valid 40000", r.ExtractionMS)
	}
	if r.ErrorMessage.Valid {
		t.Errorf("ErrorMessage = %+v, want null on success", r.ErrorMessage)
	}
}

func TestRecentRunsOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	req := models.Request{
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC),
		RowLimit:  1000,
	}
	base := time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		if err := s.StartRun(ctx, id, req, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("StartRun(%s) error = %v", id, err)
		}
	}

	runs, err := s.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].RunID != "run-c" || runs[1].RunID != "run-b" {
		t.Errorf("order = %s, %s; want run-c, run-b", runs[0].RunID, runs[1].RunID)
	}
}
