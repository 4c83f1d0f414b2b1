package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Solver metrics
	SolvesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmm_solves_total",
			Help: "Total number of solves run",
		},
		[]string{"method", "status"}, // method: fmm, direct; status: success, invalid, failed
	)

	SolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fmm_solve_duration_seconds",
			Help:    "Wall time of complete solves",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"method"},
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fmm_phase_duration_seconds",
			Help:    "Wall time of each FMM phase",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"phase"}, // phase: seed, upward, downward1, downward2, evaluate
	)

	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmm_operations_total",
			Help: "Kernel work performed by solves",
		},
		[]string{"kind"}, // kind: far_coefficients, far_to_far, far_to_near, near_to_near, local_eval, direct_pair, coincident_pair
	)

	PointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmm_points_total",
			Help: "Points submitted to solves",
		},
		[]string{"role"}, // role: source, target
	)

	SolveLevel = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fmm_level",
			Help:    "Refinement level chosen for solves",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		},
	)

	MaxError = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fmm_max_error",
			Help: "Max absolute error against the direct sum of the last compared solve",
		},
	)

	// API cache metrics
	APICacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_hits_total",
			Help: "Total number of API cache hits",
		},
		[]string{"endpoint"},
	)

	APICacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_misses_total",
			Help: "Total number of API cache misses",
		},
		[]string{"endpoint"},
	)

	APICacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_cache_size_bytes",
			Help: "Current size of API cache in bytes",
		},
	)

	APICacheItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_cache_items",
			Help: "Current number of items in API cache",
		},
	)

	APICacheEvictions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_cache_evictions",
			Help: "Evictions reported by the API cache since start",
		},
	)

	// API request metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 30},
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"scope"}, // scope: global, ip
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Times the circuit breaker opened",
		},
		[]string{"name"},
	)

	CircuitBreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_rejections_total",
			Help: "Calls rejected while the circuit breaker was open",
		},
		[]string{"name"},
	)

	// Metrics collection error tracking
	MetricsCollectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of errors during metrics collection",
		},
		[]string{"collector"},
	)
)
