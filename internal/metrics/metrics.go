package metrics

//
// Prometheus metrics shared by the estimation service and the HTTP API
//

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EstimationsTotal counts finished estimation runs by method and outcome.
	EstimationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conjoint_estimations_total",
		Help: "Total number of estimation runs",
	}, []string{"method", "outcome"})

	// EstimationDurationSeconds measures a full run, resampling included.
	EstimationDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conjoint_estimation_duration_seconds",
		Help:    "Time to complete an estimation run (in seconds)",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"method"})

	// ChoiceSetsTotal counts choice sets fed to the estimator.
	ChoiceSetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conjoint_choice_sets_total",
		Help: "Total number of choice sets estimated on",
	})

	// ReplicateFailuresTotal counts bootstrap/permutation refits that failed and were dropped.
	ReplicateFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conjoint_replicate_failures_total",
		Help: "Resampling refits that did not converge",
	}, []string{"method"})

	// HTTPRequestsTotal counts API requests by route pattern and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conjoint_http_requests_total",
		Help: "Total number of processed HTTP requests",
	}, []string{"route", "code"})

	// HTTPRequestsInflight gauges requests currently being served.
	HTTPRequestsInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conjoint_http_requests_inflight",
		Help: "The number of requests currently inflight",
	})
)
