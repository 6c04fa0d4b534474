package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/classtream/classtream/internal/logger"
	"github.com/classtream/classtream/internal/metrics"
	"github.com/classtream/classtream/pkg/models"
)

// Default retry policy: 3 attempts with delays of 2s and 4s between them.
const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 2 * time.Second
)

// Backoff computes exponentially doubling retry delays.
type Backoff struct {
	Base time.Duration
}

// Delay returns the wait before the attempt following failedAttempt:
// Base after the first failure, doubling each failure after that.
func (b Backoff) Delay(failedAttempt int) time.Duration {
	if failedAttempt < 1 {
		failedAttempt = 1
	}
	return b.Base << (failedAttempt - 1)
}

// Enqueuer submits processing jobs. Enqueue is fire-and-forget: it returns
// as soon as the job is persisted, never blocking on processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType models.JobType, videoID, fileKey string) (string, error)
}

// Delivery is one received job plus the receipt needed to settle it.
type Delivery struct {
	Job     *models.ProcessingJob
	Receipt string
}

// Broker is the durable transport underneath the queue.
type Broker interface {
	Send(ctx context.Context, job *models.ProcessingJob, delay time.Duration) error
	Receive(ctx context.Context) ([]Delivery, error)
	Delete(ctx context.Context, receipt string) error
}

// Queue durably enqueues typed jobs through a Broker.
type Queue struct {
	broker      Broker
	maxAttempts int
	log         *slog.Logger
}

// New creates a Queue with the given retry ceiling.
func New(broker Broker, maxAttempts int, log *slog.Logger) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	metrics.QueueDegraded.Set(0)
	return &Queue{
		broker:      broker,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Enqueue persists a job and returns its ID.
func (q *Queue) Enqueue(ctx context.Context, jobType models.JobType, videoID, fileKey string) (string, error) {
	job := &models.ProcessingJob{
		ID:          uuid.New().String(),
		Type:        jobType,
		VideoID:     videoID,
		FileKey:     fileKey,
		Attempt:     1,
		MaxAttempts: q.maxAttempts,
	}
	if err := job.Validate(); err != nil {
		return "", err
	}

	if err := q.broker.Send(ctx, job, 0); err != nil {
		metrics.JobsEnqueued.WithLabelValues(string(jobType), "error").Inc()
		return "", fmt.Errorf("failed to enqueue %s: %w", jobType, err)
	}

	metrics.JobsEnqueued.WithLabelValues(string(jobType), "ok").Inc()
	return job.ID, nil
}

// NoopQueue is the degraded-mode Enqueuer selected at startup when no queue
// backend is configured. Requests still succeed; processing is skipped until
// the queue returns. Every dropped job is surfaced via logs and metrics.
type NoopQueue struct {
	log *slog.Logger
}

// NewNoop creates the degraded queue and flags the degraded gauge.
func NewNoop(log *slog.Logger) *NoopQueue {
	metrics.QueueDegraded.Set(1)
	return &NoopQueue{log: log}
}

// Enqueue drops the job, loudly.
func (q *NoopQueue) Enqueue(ctx context.Context, jobType models.JobType, videoID, fileKey string) (string, error) {
	logger.Error(ctx, q.log, "Job queue degraded, job dropped",
		"type", jobType,
		"videoId", videoID,
		"error", models.ErrQueueDegraded,
	)
	metrics.JobsEnqueued.WithLabelValues(string(jobType), "dropped").Inc()
	return "", nil
}
