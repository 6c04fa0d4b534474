package queue

import (
	"sync"
	"time"

	"github.com/classtream/classtream/pkg/models"
)

// JobRecord is one finished job retained for observability.
type JobRecord struct {
	Job        models.ProcessingJob `json:"job"`
	Error      string               `json:"error,omitempty"`
	FinishedAt time.Time            `json:"finishedAt"`
}

// History keeps bounded windows of recently completed and terminally failed
// jobs. Older records are discarded.
type History struct {
	mu           sync.Mutex
	completed    []JobRecord
	failed       []JobRecord
	maxCompleted int
	maxFailed    int
}

// NewHistory creates a History retaining the given window sizes.
func NewHistory(maxCompleted, maxFailed int) *History {
	if maxCompleted <= 0 {
		maxCompleted = 10
	}
	if maxFailed <= 0 {
		maxFailed = 5
	}
	return &History{
		maxCompleted: maxCompleted,
		maxFailed:    maxFailed,
	}
}

// RecordCompleted retains a successful job.
func (h *History) RecordCompleted(job models.ProcessingJob) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed = appendBounded(h.completed, JobRecord{Job: job, FinishedAt: time.Now()}, h.maxCompleted)
}

// RecordFailed retains a terminally failed job with its error message.
func (h *History) RecordFailed(job models.ProcessingJob, errMsg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = appendBounded(h.failed, JobRecord{Job: job, Error: errMsg, FinishedAt: time.Now()}, h.maxFailed)
}

// Snapshot returns copies of both windows, newest last.
func (h *History) Snapshot() (completed, failed []JobRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	completed = append([]JobRecord(nil), h.completed...)
	failed = append([]JobRecord(nil), h.failed...)
	return completed, failed
}

func appendBounded(records []JobRecord, r JobRecord, max int) []JobRecord {
	records = append(records, r)
	if len(records) > max {
		records = records[len(records)-max:]
	}
	return records
}
