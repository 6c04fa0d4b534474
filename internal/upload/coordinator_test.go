package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/classtream/classtream/internal/storage"
	"github.com/classtream/classtream/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeObjectStore implements storage.ObjectStore in memory.
type fakeObjectStore struct {
	mu          sync.Mutex
	multiparts  map[string]string // uploadID -> key
	completed   []string
	aborted     []string
	objectSizes map[string]int64
	completeErr error
	nextUpload  int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		multiparts:  make(map[string]string),
		objectSizes: make(map[string]int64),
	}
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	return nil
}
func (f *fakeObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}
func (f *fakeObjectStore) Delete(ctx context.Context, key string) error { return nil }
func (f *fakeObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	return true, nil
}
func (f *fakeObjectStore) Head(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.objectSizes[key]
	if !ok {
		return 0, models.ErrVideoNotFound
	}
	return size, nil
}
func (f *fakeObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}
func (f *fakeObjectStore) SignGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}
func (f *fakeObjectStore) SignPutURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return "https://signed.example/put/" + key, nil
}
func (f *fakeObjectStore) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextUpload++
	id := fmt.Sprintf("upload-%d", f.nextUpload)
	f.multiparts[id] = key
	return id, nil
}
func (f *fakeObjectStore) SignUploadPartURL(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://signed.example/%s/part/%d", uploadID, partNumber), nil
}
func (f *fakeObjectStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []storage.CompletedPart) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return "", f.completeErr
	}
	f.completed = append(f.completed, uploadID)
	f.objectSizes[key] = 1024 * int64(len(parts))
	return "https://bucket.example/" + key, nil
}
func (f *fakeObjectStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, uploadID)
	return nil
}

type fakeVideoStore struct {
	mu      sync.Mutex
	created []models.VideoAsset
	updates map[string]models.VideoMetadataUpdate
	failNew bool
}

func newFakeVideoStore() *fakeVideoStore {
	return &fakeVideoStore{updates: make(map[string]models.VideoMetadataUpdate)}
}

func (f *fakeVideoStore) CreateVideo(ctx context.Context, v *models.VideoAsset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNew {
		return errors.New("insert failed")
	}
	f.created = append(f.created, *v)
	return nil
}

func (f *fakeVideoStore) UpdateVideoMetadata(ctx context.Context, videoID string, update models.VideoMetadataUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[videoID] = update
	return nil
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []models.JobType
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, jobType models.JobType, videoID, fileKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, jobType)
	return fmt.Sprintf("job-%d", len(f.jobs)), nil
}

func newTestCoordinator() (*Coordinator, *fakeObjectStore, *fakeVideoStore, *fakeEnqueuer) {
	store := newFakeObjectStore()
	videos := newFakeVideoStore()
	enq := &fakeEnqueuer{}
	return NewCoordinator(store, videos, enq, testLogger()), store, videos, enq
}

func initiate(t *testing.T, c *Coordinator) *InitiateResult {
	t.Helper()
	res, err := c.Initiate(context.Background(), InitiateRequest{
		Title:     "Algebra II, lecture 4",
		ClassID:   "class-1",
		TeacherID: "teacher-1",
	})
	if err != nil {
		t.Fatalf("Initiate failed: %v", err)
	}
	return res
}

func TestInitiateReservesKeyAndRecord(t *testing.T) {
	c, store, videos, _ := newTestCoordinator()

	res := initiate(t, c)

	if !strings.HasPrefix(res.FileKey, "videos/teacher-1/") || !strings.HasSuffix(res.FileKey, ".mp4") {
		t.Errorf("fileKey = %q, want videos/teacher-1/<uuid>.mp4", res.FileKey)
	}
	if store.multiparts[res.UploadID] != res.FileKey {
		t.Errorf("multipart upload not opened for %s", res.FileKey)
	}
	if len(videos.created) != 1 {
		t.Fatalf("expected 1 video record, got %d", len(videos.created))
	}
	if videos.created[0].FileSizeBytes != 0 {
		t.Errorf("fresh record file size = %d, want 0", videos.created[0].FileSizeBytes)
	}
}

func TestInitiateRollsBackOnRecordFailure(t *testing.T) {
	c, store, videos, _ := newTestCoordinator()
	videos.failNew = true

	if _, err := c.Initiate(context.Background(), InitiateRequest{TeacherID: "t"}); err == nil {
		t.Fatal("expected error when record insert fails")
	}
	if len(store.aborted) != 1 {
		t.Errorf("expected multipart upload aborted on rollback, got %d aborts", len(store.aborted))
	}
}

func TestSignPartURL(t *testing.T) {
	c, _, _, _ := newTestCoordinator()
	res := initiate(t, c)

	url, err := c.SignPartURL(context.Background(), res.UploadID, 3)
	if err != nil {
		t.Fatalf("SignPartURL failed: %v", err)
	}
	if !strings.Contains(url, "/part/3") {
		t.Errorf("signed URL %q missing part number", url)
	}

	if _, err := c.SignPartURL(context.Background(), "nope", 1); !errors.Is(err, models.ErrInvalidSession) {
		t.Errorf("unknown session error = %v, want ErrInvalidSession", err)
	}
	if _, err := c.SignPartURL(context.Background(), res.UploadID, 0); !errors.Is(err, models.ErrInvalidPartList) {
		t.Errorf("part 0 error = %v, want ErrInvalidPartList", err)
	}
}

func TestCompleteGaplessSequence(t *testing.T) {
	c, store, videos, enq := newTestCoordinator()
	res := initiate(t, c)

	parts := []storage.CompletedPart{
		{PartNumber: 2, ETag: "b"},
		{PartNumber: 1, ETag: "a"},
		{PartNumber: 3, ETag: "c"},
	}
	out, err := c.Complete(context.Background(), res.UploadID, parts)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if len(store.completed) != 1 {
		t.Errorf("expected 1 completed upload, got %d", len(store.completed))
	}
	if out.FileSizeBytes != 3*1024 {
		t.Errorf("file size = %d, want %d", out.FileSizeBytes, 3*1024)
	}

	update, ok := videos.updates[res.VideoID]
	if !ok || update.FileSizeBytes == nil || *update.FileSizeBytes != 3*1024 {
		t.Errorf("file size update missing or wrong: %+v", update)
	}
	if update.HLSKey != nil || update.ThumbnailKey != nil || update.DurationSeconds != nil {
		t.Error("completion must not touch derived fields")
	}

	if len(enq.jobs) != 2 || enq.jobs[0] != models.JobGenerateHLS || enq.jobs[1] != models.JobGenerateThumbnail {
		t.Errorf("enqueued jobs = %v, want [generate_hls generate_thumbnail]", enq.jobs)
	}
}

func TestCompleteRejectsGaps(t *testing.T) {
	c, store, _, enq := newTestCoordinator()
	res := initiate(t, c)

	parts := []storage.CompletedPart{
		{PartNumber: 1, ETag: "a"},
		{PartNumber: 2, ETag: "b"},
		{PartNumber: 4, ETag: "d"},
	}
	_, err := c.Complete(context.Background(), res.UploadID, parts)
	if !errors.Is(err, models.ErrIncompleteUpload) {
		t.Fatalf("gapped parts error = %v, want ErrIncompleteUpload", err)
	}
	if len(store.completed) != 0 {
		t.Error("store must not be touched for a gapped part list")
	}
	if len(enq.jobs) != 0 {
		t.Error("no jobs may be enqueued for a rejected upload")
	}

	// Rejection happens before session consumption; a corrected list works.
	fixed := []storage.CompletedPart{
		{PartNumber: 1, ETag: "a"},
		{PartNumber: 2, ETag: "b"},
	}
	if _, err := c.Complete(context.Background(), res.UploadID, fixed); err != nil {
		t.Fatalf("corrected completion failed: %v", err)
	}
}

func TestCompleteRejectsEmptyAndDuplicates(t *testing.T) {
	c, _, _, _ := newTestCoordinator()
	res := initiate(t, c)

	if _, err := c.Complete(context.Background(), res.UploadID, nil); !errors.Is(err, models.ErrIncompleteUpload) {
		t.Errorf("empty parts error = %v, want ErrIncompleteUpload", err)
	}

	dupes := []storage.CompletedPart{
		{PartNumber: 1, ETag: "a"},
		{PartNumber: 1, ETag: "a2"},
	}
	if _, err := c.Complete(context.Background(), res.UploadID, dupes); !errors.Is(err, models.ErrIncompleteUpload) {
		t.Errorf("duplicate parts error = %v, want ErrIncompleteUpload", err)
	}
}

func TestCompleteSessionSingleUse(t *testing.T) {
	c, _, _, _ := newTestCoordinator()
	res := initiate(t, c)

	parts := []storage.CompletedPart{{PartNumber: 1, ETag: "a"}}
	if _, err := c.Complete(context.Background(), res.UploadID, parts); err != nil {
		t.Fatalf("first completion failed: %v", err)
	}
	if _, err := c.Complete(context.Background(), res.UploadID, parts); !errors.Is(err, models.ErrInvalidSession) {
		t.Errorf("replayed completion error = %v, want ErrInvalidSession", err)
	}
}

func TestCompleteFailureAbortsStoreUpload(t *testing.T) {
	c, store, _, enq := newTestCoordinator()
	res := initiate(t, c)
	store.completeErr = errors.New("store unavailable")

	parts := []storage.CompletedPart{{PartNumber: 1, ETag: "a"}}
	if _, err := c.Complete(context.Background(), res.UploadID, parts); err == nil {
		t.Fatal("expected error when store completion fails")
	}

	if len(store.aborted) != 1 {
		t.Errorf("expected orphaned parts aborted, got %d aborts", len(store.aborted))
	}
	if len(enq.jobs) != 0 {
		t.Error("no jobs may be enqueued for a failed completion")
	}
	if _, err := c.SignPartURL(context.Background(), res.UploadID, 1); !errors.Is(err, models.ErrInvalidSession) {
		t.Error("session must be consumed after a failed completion")
	}
}

func TestAbortDiscardsSession(t *testing.T) {
	c, store, _, _ := newTestCoordinator()
	res := initiate(t, c)

	if err := c.Abort(context.Background(), res.UploadID); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if len(store.aborted) != 1 {
		t.Errorf("expected 1 abort, got %d", len(store.aborted))
	}
	if _, err := c.SignPartURL(context.Background(), res.UploadID, 1); !errors.Is(err, models.ErrInvalidSession) {
		t.Error("aborted session must be gone")
	}
}
