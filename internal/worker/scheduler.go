package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/classtream/classtream/internal/logger"
	"github.com/classtream/classtream/internal/queue"
	"github.com/classtream/classtream/pkg/models"
)

// CleanupScheduler periodically enqueues a scratch cleanup job. The job
// rides the normal queue so it shares the retry policy, and running the
// scheduler in a single worker instance keeps sweeps from piling up.
type CleanupScheduler struct {
	enqueuer queue.Enqueuer
	interval time.Duration
	log      *slog.Logger
}

// NewCleanupScheduler creates a CleanupScheduler.
func NewCleanupScheduler(enqueuer queue.Enqueuer, interval time.Duration, log *slog.Logger) *CleanupScheduler {
	return &CleanupScheduler{
		enqueuer: enqueuer,
		interval: interval,
		log:      log,
	}
}

// Run enqueues cleanup jobs on the configured interval until the context is
// cancelled. The first sweep fires immediately so a restarted worker does
// not wait a full interval with a dirty scratch directory.
func (s *CleanupScheduler) Run(ctx context.Context) {
	s.fire(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

func (s *CleanupScheduler) fire(ctx context.Context) {
	jobID, err := s.enqueuer.Enqueue(ctx, models.JobCleanupTempFiles, "", "")
	if err != nil {
		logger.Error(ctx, s.log, "Failed to enqueue cleanup job", "error", err)
		return
	}
	logger.Info(ctx, s.log, "Cleanup job enqueued", "jobId", jobID)
}
