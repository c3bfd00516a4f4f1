package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "factcheck_request_duration_seconds",
			Help:    "Fact-check request processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"type"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_requests_total",
			Help: "Total number of dispatched fact-check and search requests",
		},
		[]string{"type", "status"},
	)

	UpstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_upstream_errors_total",
			Help: "Failures reported by or while calling a collaborator",
		},
		[]string{"collaborator"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "factcheck_circuit_state",
			Help: "Circuit breaker state per collaborator (0 closed, 1 half-open, 2 open)",
		},
		[]string{"collaborator"},
	)

	ConfidenceScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "factcheck_confidence_score",
			Help:    "Confidence scores of standardized results",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"type"},
	)

	ResultLogAppends = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "factcheck_result_log_appends_total",
			Help: "Records appended to the result log",
		},
	)

	SearchCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "factcheck_search_cache_hits_total",
			Help: "Search requests answered from cache",
		},
	)

	SearchCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "factcheck_search_cache_misses_total",
			Help: "Search requests that went to the live search",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(UpstreamErrors)
	prometheus.MustRegister(CircuitState)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(ResultLogAppends)
	prometheus.MustRegister(SearchCacheHits)
	prometheus.MustRegister(SearchCacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
