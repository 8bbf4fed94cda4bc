package models

import (
	"testing"
	"time"
)

func TestRequestValidate(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid", Request{StartDate: start, EndDate: end, RowLimit: 100}, false},
		{"same day", Request{StartDate: start, EndDate: start, RowLimit: 100}, false},
		{"inverted range", Request{StartDate: end, EndDate: start, RowLimit: 100}, true},
		{"zero row limit", Request{StartDate: start, EndDate: end, RowLimit: 0}, true},
		{"negative row limit", Request{StartDate: start, EndDate: end, RowLimit: -5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestColumnsStable(t *testing.T) {
	cols := Columns()
	if len(cols) != 22 {
		t.Fatalf("len(Columns()) = %d, want 22", len(cols))
	}
	if cols[0] != "timestamp" {
		t.Errorf("Columns()[0] = %q, want timestamp", cols[0])
	}
	if cols[len(cols)-1] != "ridership_30day_avg" {
		t.Errorf("last column = %q, want ridership_30day_avg", cols[len(cols)-1])
	}
}
