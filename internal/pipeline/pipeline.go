package pipeline

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mgalarneau/NYC-Transit-Project/internal/cache"
	"github.com/mgalarneau/NYC-Transit-Project/internal/extract"
	"github.com/mgalarneau/NYC-Transit-Project/internal/load"
	"github.com/mgalarneau/NYC-Transit-Project/internal/metrics"
	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
	"github.com/mgalarneau/NYC-Transit-Project/internal/store"
	"github.com/mgalarneau/NYC-Transit-Project/internal/transform"
)

// Runner orchestrates one extract-transform-load pass. Extraction and
// transformation run inside the cache boundary, so a warm cache skips both
// and goes straight to loading.
type Runner struct {
	extractor *extract.Extractor
	cache     *cache.Manager
	store     *store.Store
	sinks     func(req models.Request) ([]load.Sink, error)
}

// NewRunner wires the pipeline. sinks builds the sink set per request so
// range-scoped sinks see the request's dates; a sink that cannot be built
// fails the run rather than silently narrowing the requested load targets.
// store may be nil when no warehouse is configured, which disables the run
// audit.
func NewRunner(extractor *extract.Extractor, cacheMgr *cache.Manager, st *store.Store, sinks func(models.Request) ([]load.Sink, error)) *Runner {
	return &Runner{extractor: extractor, cache: cacheMgr, store: st, sinks: sinks}
}

// Run executes the full pipeline for one request and returns its summary.
// The summary is filled in even on failure so callers can audit what broke.
func (r *Runner) Run(ctx context.Context, req models.Request) (models.RunSummary, error) {
	summary := models.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Status:    "running",
	}
	log.Printf("pipeline: run %s: %s to %s", summary.RunID,
		req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02"))

	if r.store != nil {
		if err := r.store.StartRun(ctx, summary.RunID, req, summary.StartedAt); err != nil {
			return r.fail(ctx, summary, err)
		}
	}

	records, report, hit, err := r.cache.GetOrCompute(ctx, req, func(ctx context.Context) ([]models.MergedRecord, models.QualityReport, error) {
		extractStart := time.Now()
		ridership, weather, err := r.extractor.Extract(ctx, req)
		summary.Extraction = time.Since(extractStart)
		metrics.PhaseDuration.WithLabelValues("extraction").Observe(summary.Extraction.Seconds())
		if err != nil {
			return nil, models.QualityReport{}, err
		}

		transformStart := time.Now()
		merged, rep, err := transform.Transform(ridership, weather)
		summary.Transform = time.Since(transformStart)
		metrics.PhaseDuration.WithLabelValues("transform").Observe(summary.Transform.Seconds())
		if err != nil {
			return nil, models.QualityReport{}, err
		}
		return merged, rep, nil
	})
	if err != nil {
		return r.fail(ctx, summary, err)
	}
	summary.CacheHit = hit
	summary.RowsMerged = len(records)

	sinks, err := r.sinks(req)
	if err != nil {
		return r.fail(ctx, summary, err)
	}
	defer closeSinks(sinks)

	loadStart := time.Now()
	loader := load.NewLoader(sinks...)
	err = loader.Write(ctx, records, report)
	summary.Loading = time.Since(loadStart)
	metrics.PhaseDuration.WithLabelValues("loading").Observe(summary.Loading.Seconds())
	if err != nil {
		return r.fail(ctx, summary, err)
	}

	summary.Status = "succeeded"
	summary.CompletedAt = time.Now().UTC()
	metrics.PipelineRuns.WithLabelValues("succeeded").Inc()
	if r.store != nil {
		if err := r.store.CompleteRun(ctx, summary); err != nil {
			log.Printf("pipeline: run %s: audit update failed: %v", summary.RunID, err)
		}
	}
	log.Printf("pipeline: run %s succeeded: %d rows (cache hit: %t)", summary.RunID, summary.RowsMerged, hit)
	return summary, nil
}

// closeSinks releases sinks holding connections (the Postgres sink's pool).
func closeSinks(sinks []load.Sink) {
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Printf("pipeline: close %s sink: %v", s.Name(), err)
			}
		}
	}
}

func (r *Runner) fail(ctx context.Context, summary models.RunSummary, err error) (models.RunSummary, error) {
	summary.Status = "failed"
	summary.CompletedAt = time.Now().UTC()
	summary.Error = err.Error()
	metrics.PipelineRuns.WithLabelValues("failed").Inc()
	if r.store != nil {
		if auditErr := r.store.CompleteRun(ctx, summary); auditErr != nil {
			log.Printf("pipeline: run %s: audit update failed: %v", summary.RunID, auditErr)
		}
	}
	log.Printf("pipeline: run %s failed: %v", summary.RunID, err)
	return summary, err
}
