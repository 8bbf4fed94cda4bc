package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SourceFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_etl_source_fetches_total",
			Help: "Source API fetch outcomes",
		},
		[]string{"source", "status"},
	)

	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_etl_records_extracted_total",
			Help: "Raw records extracted per source",
		},
		[]string{"source"},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_etl_cache_requests_total",
			Help: "Cache lookups by result (hit/miss)",
		},
		[]string{"result"},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_etl_pipeline_runs_total",
			Help: "Pipeline runs by final status",
		},
		[]string{"status"},
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transit_etl_phase_duration_seconds",
			Help:    "Duration of each pipeline phase",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
)
