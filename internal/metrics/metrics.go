package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Lifecycle metrics

	JobTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "babypeek",
		Name:      "job_transitions_total",
		Help:      "Job state transitions, by destination status.",
	}, []string{"to"})

	StaleProcessingJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "babypeek",
		Name:      "stale_processing_jobs",
		Help:      "Processing jobs with no update past the stale cutoff, as of the last sweep.",
	})

	// Rate limiter metrics

	RateLimitDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "babypeek",
		Name:      "rate_limit_decisions_total",
		Help:      "Admission decisions, by outcome.",
	}, []string{"decision"})

	RateWindowsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "babypeek",
		Name:      "rate_windows_swept_total",
		Help:      "Expired rate windows removed by the sweeper.",
	})

	// Retry / upstream metrics

	RetryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "babypeek",
		Name:      "retry_attempts_total",
		Help:      "Upstream generation attempts, by classified cause.",
	}, []string{"cause"})

	RetryOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "babypeek",
		Name:      "retry_outcomes_total",
		Help:      "Final outcome of retried upstream calls.",
	}, []string{"outcome"})

	GenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "babypeek",
		Name:      "generation_duration_seconds",
		Help:      "Wall-clock duration of one upstream generation call.",
		Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"outcome"})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "babypeek",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "babypeek",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		JobTransitionsTotal,
		StaleProcessingJobs,
		RateLimitDecisionsTotal,
		RateWindowsSwept,
		RetryAttemptsTotal,
		RetryOutcomesTotal,
		GenerationDuration,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}
