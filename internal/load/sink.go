package load

import (
	"context"
	"fmt"
	"log"

	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

// Sink receives a finalized merged dataset and its quality report. Data
// arriving here is already validated and scored; sinks only serialize.
type Sink interface {
	Name() string
	Write(ctx context.Context, records []models.MergedRecord, report models.QualityReport) error
}

// Loader fans a dataset out to every configured sink. The first sink error
// aborts the load; the request fails as a whole rather than leaving an
// ambiguous partial set of sinks written.
type Loader struct {
	sinks []Sink
}

func NewLoader(sinks ...Sink) *Loader {
	return &Loader{sinks: sinks}
}

func (l *Loader) Write(ctx context.Context, records []models.MergedRecord, report models.QualityReport) error {
	for _, sink := range l.sinks {
		if err := sink.Write(ctx, records, report); err != nil {
			return fmt.Errorf("load %s: %w", sink.Name(), err)
		}
		log.Printf("load: %s: wrote %d rows", sink.Name(), len(records))
	}
	return nil
}
