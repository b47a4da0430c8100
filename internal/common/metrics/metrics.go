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

	CertificatesMinted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "certificates_minted_total",
			Help: "Certificates successfully minted on the ledger",
		},
	)

	IssuanceStageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_issuance_stage_failures_total",
			Help: "Issuance failures by pipeline stage",
		},
		[]string{"stage"},
	)

	IssuanceStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "certificate_issuance_stage_duration_seconds",
			Help:    "Duration of each issuance stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	BatchRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_batch_rows_total",
			Help: "Batch import rows by outcome",
		},
		[]string{"outcome"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_notifications_total",
			Help: "Certificate notifications by channel and status",
		},
		[]string{"channel", "status"},
	)

	VerificationTiers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_verifications_total",
			Help: "Verified certificates by freshness tier",
		},
		[]string{"tier"},
	)
)
