package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uploads_ingested_total",
		Help: "Total number of training data files ingested",
	})

	TrainingRowsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "training_rows_ingested_total",
		Help: "Total number of training rows appended to the store",
	})

	UploadsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uploads_rejected_total",
		Help: "Total number of rejected uploads",
	}, []string{"reason"})

	JobsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forecast_jobs_submitted_total",
		Help: "Total number of forecast jobs submitted to the queue",
	})

	JobsSucceededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forecast_jobs_succeeded_total",
		Help: "Total number of forecast jobs that reached SUCCESS",
	})

	JobsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_jobs_failed_total",
		Help: "Total number of forecast jobs that reached FAILURE",
	}, []string{"reason"})

	ForecastRowsStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forecast_rows_stored_total",
		Help: "Total number of forecast result rows persisted",
	})

	EngineRunLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forecast_engine_run_latency_seconds",
		Help:    "Latency of forecast engine invocations",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	CallbackLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forecast_callback_latency_seconds",
		Help:    "Latency of worker-to-API result delivery",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
