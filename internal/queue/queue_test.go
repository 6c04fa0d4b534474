package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/classtream/classtream/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeBroker is an in-memory Broker that records sends with their requested
// delays and feeds scripted deliveries to Receive.
type fakeBroker struct {
	mu       sync.Mutex
	sent     []sentJob
	deleted  []string
	pending  []Delivery
	sendErr  error
	received bool
}

type sentJob struct {
	job   models.ProcessingJob
	delay time.Duration
}

func (b *fakeBroker) Send(ctx context.Context, job *models.ProcessingJob, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, sentJob{job: *job, delay: delay})
	return nil
}

func (b *fakeBroker) Receive(ctx context.Context) ([]Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.received {
		return nil, nil
	}
	b.received = true
	return b.pending, nil
}

func (b *fakeBroker) Delete(ctx context.Context, receipt string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, receipt)
	return nil
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 2 * time.Second}

	tests := []struct {
		failedAttempt int
		want          time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{0, 2 * time.Second}, // clamped
	}

	for _, tt := range tests {
		if got := b.Delay(tt.failedAttempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.failedAttempt, got, tt.want)
		}
	}
}

func TestQueueEnqueue(t *testing.T) {
	broker := &fakeBroker{}
	q := New(broker, 3, testLogger())

	jobID, err := q.Enqueue(context.Background(), models.JobGenerateHLS, "vid-1", "videos/t/f.mp4")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if jobID == "" {
		t.Error("expected non-empty job ID")
	}

	if len(broker.sent) != 1 {
		t.Fatalf("expected 1 sent job, got %d", len(broker.sent))
	}
	sent := broker.sent[0]
	if sent.delay != 0 {
		t.Errorf("fresh job sent with delay %v, want 0", sent.delay)
	}
	if sent.job.Attempt != 1 {
		t.Errorf("fresh job attempt = %d, want 1", sent.job.Attempt)
	}
	if sent.job.MaxAttempts != 3 {
		t.Errorf("fresh job maxAttempts = %d, want 3", sent.job.MaxAttempts)
	}
	if sent.job.Type != models.JobGenerateHLS {
		t.Errorf("job type = %s, want %s", sent.job.Type, models.JobGenerateHLS)
	}
}

func TestQueueEnqueueValidation(t *testing.T) {
	broker := &fakeBroker{}
	q := New(broker, 3, testLogger())

	if _, err := q.Enqueue(context.Background(), models.JobGenerateHLS, "", "videos/t/f.mp4"); err == nil {
		t.Error("expected error for missing video ID")
	}
	if _, err := q.Enqueue(context.Background(), "resize_gif", "vid-1", "k"); err == nil {
		t.Error("expected error for unknown job type")
	}
	if len(broker.sent) != 0 {
		t.Errorf("invalid jobs should not reach the broker, got %d sends", len(broker.sent))
	}
}

func TestNoopQueueDropsWithoutError(t *testing.T) {
	q := NewNoop(testLogger())

	jobID, err := q.Enqueue(context.Background(), models.JobGenerateThumbnail, "vid-1", "videos/t/f.mp4")
	if err != nil {
		t.Fatalf("degraded enqueue should not fail the request: %v", err)
	}
	if jobID != "" {
		t.Errorf("degraded enqueue returned job ID %q, want empty", jobID)
	}
}

// countingHandler fails a scripted number of times, then succeeds.
type countingHandler struct {
	mu        sync.Mutex
	calls     []int
	failUntil int
}

func (h *countingHandler) Handle(ctx context.Context, job *models.ProcessingJob) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, job.Attempt)
	if len(h.calls) <= h.failUntil {
		return fmt.Errorf("%w: synthetic", models.ErrTranscodeFailed)
	}
	return nil
}

type fakeFailureSink struct {
	mu      sync.Mutex
	records []string
}

func (s *fakeFailureSink) RecordJobFailure(ctx context.Context, videoID, jobType, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, videoID+"/"+jobType)
	return nil
}

func newTestConsumer(broker Broker, handler Handler, sink FailureSink) *Consumer {
	return NewConsumer(&ConsumerConfig{
		Broker:      broker,
		Handler:     handler,
		FailureSink: sink,
		Backoff:     Backoff{Base: 2 * time.Second},
		Logger:      testLogger(),
	})
}

func TestConsumerRetrySchedulesBackoff(t *testing.T) {
	broker := &fakeBroker{}
	handler := &countingHandler{failUntil: 1}
	c := newTestConsumer(broker, handler, nil)

	job := &models.ProcessingJob{
		ID: "job-1", Type: models.JobGenerateHLS,
		VideoID: "vid-1", FileKey: "videos/t/f.mp4",
		Attempt: 1, MaxAttempts: 3,
	}
	c.process(context.Background(), Delivery{Job: job, Receipt: "r1"})

	if len(broker.sent) != 1 {
		t.Fatalf("expected 1 retry send, got %d", len(broker.sent))
	}
	retry := broker.sent[0]
	if retry.job.Attempt != 2 {
		t.Errorf("retry attempt = %d, want 2", retry.job.Attempt)
	}
	if retry.delay != 2*time.Second {
		t.Errorf("first retry delay = %v, want 2s", retry.delay)
	}
	if len(broker.deleted) != 1 || broker.deleted[0] != "r1" {
		t.Errorf("original message not settled after retry scheduling: %v", broker.deleted)
	}
}

func TestConsumerSecondRetryDoublesDelay(t *testing.T) {
	broker := &fakeBroker{}
	handler := &countingHandler{failUntil: 1}
	c := newTestConsumer(broker, handler, nil)

	job := &models.ProcessingJob{
		ID: "job-1", Type: models.JobGenerateHLS,
		VideoID: "vid-1", FileKey: "videos/t/f.mp4",
		Attempt: 2, MaxAttempts: 3,
	}
	c.process(context.Background(), Delivery{Job: job, Receipt: "r2"})

	if len(broker.sent) != 1 {
		t.Fatalf("expected 1 retry send, got %d", len(broker.sent))
	}
	if broker.sent[0].delay != 4*time.Second {
		t.Errorf("second retry delay = %v, want 4s", broker.sent[0].delay)
	}
	if broker.sent[0].job.Attempt != 3 {
		t.Errorf("retry attempt = %d, want 3", broker.sent[0].job.Attempt)
	}
}

func TestConsumerTerminalFailureAtCeiling(t *testing.T) {
	broker := &fakeBroker{}
	handler := &countingHandler{failUntil: 99}
	sink := &fakeFailureSink{}
	c := newTestConsumer(broker, handler, sink)

	job := &models.ProcessingJob{
		ID: "job-1", Type: models.JobGenerateThumbnail,
		VideoID: "vid-1", FileKey: "videos/t/f.mp4",
		Attempt: 3, MaxAttempts: 3,
	}
	c.process(context.Background(), Delivery{Job: job, Receipt: "r3"})

	if len(broker.sent) != 0 {
		t.Errorf("terminal failure must not re-enqueue, got %d sends", len(broker.sent))
	}
	if len(broker.deleted) != 1 {
		t.Errorf("terminal failure must settle the message, got %d deletes", len(broker.deleted))
	}
	if len(sink.records) != 1 || sink.records[0] != "vid-1/generate_thumbnail" {
		t.Errorf("failure sink records = %v", sink.records)
	}

	_, failed := c.History().Snapshot()
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed history record, got %d", len(failed))
	}
	if failed[0].Error == "" {
		t.Error("failed record missing error message")
	}
}

func TestConsumerSuccessRecordsHistory(t *testing.T) {
	broker := &fakeBroker{}
	handler := &countingHandler{failUntil: 0}
	c := newTestConsumer(broker, handler, nil)

	job := &models.ProcessingJob{
		ID: "job-1", Type: models.JobCleanupTempFiles,
		Attempt: 1, MaxAttempts: 3,
	}
	c.process(context.Background(), Delivery{Job: job, Receipt: "r1"})

	completed, failed := c.History().Snapshot()
	if len(completed) != 1 {
		t.Fatalf("expected 1 completed record, got %d", len(completed))
	}
	if len(failed) != 0 {
		t.Errorf("expected no failed records, got %d", len(failed))
	}
	if len(broker.deleted) != 1 {
		t.Errorf("success must settle the message")
	}
}

func TestConsumerRetrySendFailureLeavesMessage(t *testing.T) {
	broker := &fakeBroker{sendErr: errors.New("queue down")}
	handler := &countingHandler{failUntil: 99}
	c := newTestConsumer(broker, handler, nil)

	job := &models.ProcessingJob{
		ID: "job-1", Type: models.JobGenerateHLS,
		VideoID: "vid-1", FileKey: "videos/t/f.mp4",
		Attempt: 1, MaxAttempts: 3,
	}
	c.process(context.Background(), Delivery{Job: job, Receipt: "r1"})

	if len(broker.deleted) != 0 {
		t.Error("message must stay in queue when retry scheduling fails")
	}
}

func TestConsumerRunDrainsOnCancel(t *testing.T) {
	broker := &fakeBroker{
		pending: []Delivery{{
			Job: &models.ProcessingJob{
				ID: "job-1", Type: models.JobCleanupTempFiles,
				Attempt: 1, MaxAttempts: 3,
			},
			Receipt: "r1",
		}},
	}
	handler := &countingHandler{failUntil: 0}
	c := newTestConsumer(broker, handler, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		handler.mu.Lock()
		n := len(handler.calls)
		handler.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("handler never invoked")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHistoryBounds(t *testing.T) {
	h := NewHistory(10, 5)

	for i := 0; i < 20; i++ {
		h.RecordCompleted(models.ProcessingJob{ID: fmt.Sprintf("ok-%d", i)})
		h.RecordFailed(models.ProcessingJob{ID: fmt.Sprintf("bad-%d", i)}, "boom")
	}

	completed, failed := h.Snapshot()
	if len(completed) != 10 {
		t.Errorf("completed window = %d, want 10", len(completed))
	}
	if len(failed) != 5 {
		t.Errorf("failed window = %d, want 5", len(failed))
	}
	// Oldest records evicted, newest retained.
	if completed[len(completed)-1].Job.ID != "ok-19" {
		t.Errorf("newest completed = %s, want ok-19", completed[len(completed)-1].Job.ID)
	}
	if failed[0].Job.ID != "bad-15" {
		t.Errorf("oldest retained failed = %s, want bad-15", failed[0].Job.ID)
	}
}

func TestParseJobDefaults(t *testing.T) {
	job, err := parseJob(`{"id":"j1","type":"generate_hls","videoId":"v1","fileKey":"videos/t/f.mp4"}`)
	if err != nil {
		t.Fatalf("parseJob failed: %v", err)
	}
	if job.Attempt != 1 {
		t.Errorf("attempt defaulted to %d, want 1", job.Attempt)
	}
	if job.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("maxAttempts defaulted to %d, want %d", job.MaxAttempts, DefaultMaxAttempts)
	}

	if _, err := parseJob(""); err == nil {
		t.Error("expected error for empty body")
	}
	if _, err := parseJob(`{"id":"j1","type":"warp_speed"}`); err == nil {
		t.Error("expected error for unknown job type")
	}
}
