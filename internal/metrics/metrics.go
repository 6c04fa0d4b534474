package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Worker metrics
var (
	// JobsProcessed counts processed jobs by type and status.
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classtream",
			Name:      "jobs_processed_total",
			Help:      "Total number of processing jobs by type and terminal status",
		},
		[]string{"type", "status"},
	)

	// JobRetries counts retry re-enqueues by job type.
	JobRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classtream",
			Name:      "job_retries_total",
			Help:      "Total number of job retries scheduled",
		},
		[]string{"type"},
	)

	// ActiveJobs tracks the number of currently processing jobs.
	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "classtream",
			Name:      "active_jobs",
			Help:      "Number of currently processing jobs",
		},
	)

	// JobDuration tracks end-to-end job duration by type.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "classtream",
			Name:      "job_duration_seconds",
			Help:      "Time taken to run a processing job",
			Buckets:   []float64{1, 10, 30, 60, 120, 300, 600},
		},
		[]string{"type"},
	)

	// DownloadDuration tracks the time taken to download raw videos.
	DownloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "classtream",
			Name:      "video_download_duration_seconds",
			Help:      "Time taken to download raw videos from the object store",
			Buckets:   []float64{1, 5, 10, 30, 60, 120},
		},
	)

	// UploadDuration tracks the time taken to upload derived files.
	UploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "classtream",
			Name:      "derived_upload_duration_seconds",
			Help:      "Time taken to upload derived files to the object store",
			Buckets:   []float64{1, 5, 10, 30, 60, 120},
		},
	)

	// TranscodeDuration tracks the time taken for FFmpeg transcoding.
	TranscodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "classtream",
			Name:      "video_transcode_duration_seconds",
			Help:      "Time taken for FFmpeg transcoding",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200},
		},
	)

	// ScratchEntriesReclaimed counts temp entries removed by cleanup sweeps.
	ScratchEntriesReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "classtream",
			Name:      "scratch_entries_reclaimed_total",
			Help:      "Total scratch filesystem entries removed by cleanup",
		},
	)
)

// Queue metrics
var (
	// QueueDegraded is 1 while the no-op queue is selected.
	QueueDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "classtream",
			Name:      "queue_degraded",
			Help:      "1 when the job queue is operating in degraded no-op mode",
		},
	)

	// JobsEnqueued counts enqueued jobs by type and outcome.
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classtream",
			Name:      "jobs_enqueued_total",
			Help:      "Total number of jobs enqueued",
		},
		[]string{"type", "outcome"},
	)
)

// API metrics
var (
	// AuthFailures counts authentication failures by reason.
	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classtream",
			Subsystem: "api",
			Name:      "auth_failures_total",
			Help:      "Total number of authentication failures",
		},
		[]string{"reason"},
	)

	// UploadsInitiated counts multipart upload initiations.
	UploadsInitiated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "classtream",
			Subsystem: "api",
			Name:      "uploads_initiated_total",
			Help:      "Total number of multipart uploads initiated",
		},
	)

	// UploadsCompleted counts completed multipart uploads.
	UploadsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "classtream",
			Subsystem: "api",
			Name:      "uploads_completed_total",
			Help:      "Total number of multipart uploads completed",
		},
	)
)

// RecordJobSuccess records a successfully completed job.
func RecordJobSuccess(jobType string) {
	JobsProcessed.WithLabelValues(jobType, "success").Inc()
}

// RecordJobFailure records a terminally failed job.
func RecordJobFailure(jobType string) {
	JobsProcessed.WithLabelValues(jobType, "failed").Inc()
}
