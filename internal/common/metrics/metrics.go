package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// RequestsTotal counts dispatched requests by classified intent, resolved
	// action and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qms_requests_total",
			Help: "Total number of dispatched QMS requests",
		},
		[]string{"query_type", "action", "success"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qms_dispatch_duration_seconds",
			Help:    "Duration of request dispatch in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type"},
	)

	StorageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qms_storage_failures_total",
			Help: "Total number of failed storage operations",
		},
		[]string{"operation"},
	)

	KnowledgeCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qms_knowledge_cache_total",
			Help: "Knowledge answer cache lookups by result",
		},
		[]string{"result"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qms_notifications_total",
			Help: "Notifications attempted by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)
)
