package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/classtream/classtream/internal/logger"
	"github.com/classtream/classtream/internal/metrics"
	"github.com/classtream/classtream/pkg/models"
)

// ReceiveBackoffPeriod is the pause after a failed receive before retrying.
const ReceiveBackoffPeriod = 5 * time.Second

var tracer = otel.Tracer("classtream-queue")

// Handler processes one job. A returned error triggers the retry policy.
type Handler interface {
	Handle(ctx context.Context, job *models.ProcessingJob) error
}

// FailureSink records terminal job failures, typically the video repository.
type FailureSink interface {
	RecordJobFailure(ctx context.Context, videoID, jobType, errorMessage string) error
}

// ConsumerConfig holds consumer dependencies.
type ConsumerConfig struct {
	Broker        Broker
	Handler       Handler
	FailureSink   FailureSink
	Backoff       Backoff
	MaxConcurrent int
	History       *History
	Logger        *slog.Logger
}

// Consumer pulls jobs from the broker and dispatches them to the handler
// with bounded concurrency. Failed jobs are re-enqueued with exponentially
// increasing delay until the attempt ceiling, then surfaced as terminal.
type Consumer struct {
	broker        Broker
	handler       Handler
	failureSink   FailureSink
	backoff       Backoff
	maxConcurrent int
	history       *History
	log           *slog.Logger
}

// NewConsumer creates a Consumer with the given configuration.
func NewConsumer(cfg *ConsumerConfig) *Consumer {
	backoff := cfg.Backoff
	if backoff.Base <= 0 {
		backoff.Base = DefaultBackoffBase
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	history := cfg.History
	if history == nil {
		history = NewHistory(10, 5)
	}
	return &Consumer{
		broker:        cfg.Broker,
		handler:       cfg.Handler,
		failureSink:   cfg.FailureSink,
		backoff:       backoff,
		maxConcurrent: maxConcurrent,
		history:       history,
		log:           cfg.Logger,
	}
}

// History returns the bounded job history for observability endpoints.
func (c *Consumer) History() *History {
	return c.history
}

// Run polls for jobs and blocks until the context is cancelled, then waits
// for in-flight jobs to finish.
func (c *Consumer) Run(ctx context.Context) {
	logger.Info(ctx, c.log, "Starting queue polling", "maxConcurrent", c.maxConcurrent)

	sem := make(chan struct{}, c.maxConcurrent)
	var wg sync.WaitGroup

messageLoop:
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, c.log, "Waiting for in-progress jobs to complete...")
			wg.Wait()
			logger.Info(ctx, c.log, "All jobs completed, shutting down")
			return
		default:
		}

		deliveries, err := c.broker.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue // Shutting down
			}
			logger.Error(ctx, c.log, "Failed to receive jobs", "error", err)
			time.Sleep(ReceiveBackoffPeriod)
			continue
		}

		for _, d := range deliveries {
			select {
			case sem <- struct{}{}:
				wg.Add(1)
				go func(d Delivery) {
					defer wg.Done()
					defer func() { <-sem }()

					metrics.ActiveJobs.Inc()
					defer metrics.ActiveJobs.Dec()

					c.process(ctx, d)
				}(d)
			case <-ctx.Done():
				logger.Info(ctx, c.log, "Context cancelled, stopping job processing")
				break messageLoop
			}
		}
	}

	wg.Wait()
}

// process runs one delivery through the handler and settles it according to
// the retry policy.
func (c *Consumer) process(ctx context.Context, d Delivery) {
	ctx, span := tracer.Start(ctx, "process-job")
	defer span.End()

	job := d.Job
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.type", string(job.Type)),
		attribute.String("video.id", job.VideoID),
		attribute.Int("job.attempt", job.Attempt),
	)

	start := time.Now()
	err := c.handler.Handle(ctx, job)
	metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())

	if err == nil {
		c.settle(ctx, d.Receipt)
		c.history.RecordCompleted(*job)
		metrics.RecordJobSuccess(string(job.Type))
		logger.Info(ctx, c.log, "Job completed",
			"jobId", job.ID,
			"type", job.Type,
			"videoId", job.VideoID,
			"attempt", job.Attempt,
		)
		return
	}

	span.RecordError(err)

	if job.Attempt < job.MaxAttempts {
		retry := *job
		retry.Attempt++
		delay := c.backoff.Delay(job.Attempt)

		if sendErr := c.broker.Send(ctx, &retry, delay); sendErr != nil {
			// Leave the original message in place; visibility timeout will
			// redeliver it rather than losing the retry.
			logger.Error(ctx, c.log, "Failed to schedule retry, relying on redelivery",
				"jobId", job.ID,
				"error", sendErr,
			)
			return
		}

		c.settle(ctx, d.Receipt)
		metrics.JobRetries.WithLabelValues(string(job.Type)).Inc()
		logger.Warn(ctx, c.log, "Job failed, retry scheduled",
			"jobId", job.ID,
			"type", job.Type,
			"videoId", job.VideoID,
			"attempt", job.Attempt,
			"maxAttempts", job.MaxAttempts,
			"delay", delay.String(),
			"error", err,
		)
		return
	}

	// Terminal failure: retained with its error, never retried again.
	c.settle(ctx, d.Receipt)
	c.history.RecordFailed(*job, err.Error())
	metrics.RecordJobFailure(string(job.Type))
	logger.Error(ctx, c.log, "Job failed terminally",
		"jobId", job.ID,
		"type", job.Type,
		"videoId", job.VideoID,
		"attempts", job.Attempt,
		"error", err,
	)

	if c.failureSink != nil && job.VideoID != "" {
		if recErr := c.failureSink.RecordJobFailure(ctx, job.VideoID, string(job.Type), err.Error()); recErr != nil {
			logger.Error(ctx, c.log, "Failed to record job failure",
				"videoId", job.VideoID,
				"error", recErr,
			)
		}
	}
}

func (c *Consumer) settle(ctx context.Context, receipt string) {
	if err := c.broker.Delete(ctx, receipt); err != nil {
		logger.Error(ctx, c.log, "Failed to delete settled message", "error", err)
	}
}
