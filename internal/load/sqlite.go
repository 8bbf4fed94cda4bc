package load

import (
	"context"
	"time"

	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
	"github.com/mgalarneau/NYC-Transit-Project/internal/store"
)

// StoreSink loads the dataset into the SQLite warehouse. The write replaces
// the request's date range so repeated runs stay idempotent.
type StoreSink struct {
	Store *store.Store
	Start time.Time
	End   time.Time
}

func (s *StoreSink) Name() string { return "sqlite" }

func (s *StoreSink) Write(ctx context.Context, records []models.MergedRecord, _ models.QualityReport) error {
	return s.Store.ReplaceRange(ctx, s.Start, s.End, records)
}
