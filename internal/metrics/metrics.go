package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stage counters and histograms, partitioned by origin key.

var (
	// Fetcher
	FetcherRowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "converter",
		Subsystem: "fetcher",
		Name:      "rows_processed_total",
		Help:      "Total rows fetched from explorer APIs",
	}, []string{"origin_key"})

	FetcherFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "converter",
		Subsystem: "fetcher",
		Name:      "failures_total",
		Help:      "Total per-row fetch failures by class",
	}, []string{"origin_key", "class"})

	FetcherRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "converter",
		Subsystem: "fetcher",
		Name:      "retries_total",
		Help:      "Total fetch retry attempts after a transient failure",
	}, []string{"origin_key"})

	FetcherLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "converter",
		Subsystem: "fetcher",
		Name:      "row_duration_seconds",
		Help:      "Per-row fetch duration including retries",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"origin_key"})

	// Normalizer
	NormalizerRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "converter",
		Subsystem: "normalizer",
		Name:      "records_total",
		Help:      "Total OLI tag records produced",
	}, []string{"origin_key"})

	NormalizerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "converter",
		Subsystem: "normalizer",
		Name:      "errors_total",
		Help:      "Total raw responses that could not be normalized",
	}, []string{"origin_key"})

	// Accumulator
	AccumulatorRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "converter",
		Subsystem: "accumulator",
		Name:      "records_total",
		Help:      "Total records accumulated into the batch result",
	})

	AccumulatorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "converter",
		Subsystem: "accumulator",
		Name:      "failures_total",
		Help:      "Total failures accumulated into the batch result",
	})

	// Explorer client
	ExplorerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "converter",
		Subsystem: "explorer",
		Name:      "requests_total",
		Help:      "Total explorer API requests by status class",
	}, []string{"origin_key", "status"})

	ExplorerCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "converter",
		Subsystem: "explorer",
		Name:      "cache_hits_total",
		Help:      "Total explorer responses served from the in-process cache",
	}, []string{"origin_key"})

	ExplorerRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "converter",
		Subsystem: "explorer",
		Name:      "rate_limit_waits_total",
		Help:      "Total requests delayed by the per-network rate limiter",
	}, []string{"origin_key"})

	ExplorerBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "converter",
		Subsystem: "explorer",
		Name:      "breaker_state",
		Help:      "Circuit breaker state per network (0=closed, 1=half-open, 2=open)",
	}, []string{"origin_key"})
)
