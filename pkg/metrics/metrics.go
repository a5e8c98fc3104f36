package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vantage_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Search metrics
	SearchQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_search_queries_total",
			Help: "Total number of search queries by technique",
		},
		[]string{"technique"},
	)

	SearchQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vantage_search_query_duration_seconds",
			Help:    "Repository search duration in seconds by technique",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"technique"},
	)

	// Ingestion metrics
	IngestRecordsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vantage_ingest_records_processed_total",
			Help: "Total number of XML records parsed",
		},
	)

	IngestRecordsInserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vantage_ingest_records_inserted_total",
			Help: "Total number of business rows upserted",
		},
	)

	IngestFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vantage_ingest_flush_duration_seconds",
			Help:    "Batch writer flush duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestFlushRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vantage_ingest_flush_retries_total",
			Help: "Total number of flush retries after transient failures",
		},
	)

	IngestRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_ingest_runs_total",
			Help: "Total number of ingestion runs by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal,
		APIRequestDuration,
		SearchQueriesTotal,
		SearchQueryDuration,
		IngestRecordsProcessed,
		IngestRecordsInserted,
		IngestFlushDuration,
		IngestFlushRetries,
		IngestRunsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures a duration for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time in the given observer
func (t *Timer) ObserveDuration(o prometheus.Observer) {
	o.Observe(time.Since(t.start).Seconds())
}
