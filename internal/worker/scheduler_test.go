package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/classtream/classtream/pkg/models"
)

type recordingEnqueuer struct {
	mu    sync.Mutex
	types []models.JobType
	fired chan struct{}
}

func (r *recordingEnqueuer) Enqueue(ctx context.Context, jobType models.JobType, videoID, fileKey string) (string, error) {
	r.mu.Lock()
	r.types = append(r.types, jobType)
	r.mu.Unlock()
	select {
	case r.fired <- struct{}{}:
	default:
	}
	return "job-1", nil
}

func TestCleanupSchedulerFiresImmediately(t *testing.T) {
	enq := &recordingEnqueuer{fired: make(chan struct{}, 1)}
	s := NewCleanupScheduler(enq, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-enq.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never fired the initial sweep")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}

	enq.mu.Lock()
	defer enq.mu.Unlock()
	if len(enq.types) == 0 || enq.types[0] != models.JobCleanupTempFiles {
		t.Errorf("enqueued types = %v, want cleanup job first", enq.types)
	}
}
