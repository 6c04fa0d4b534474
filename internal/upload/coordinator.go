package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/classtream/classtream/internal/logger"
	"github.com/classtream/classtream/internal/metrics"
	"github.com/classtream/classtream/internal/queue"
	"github.com/classtream/classtream/internal/storage"
	"github.com/classtream/classtream/pkg/models"
)

// PartURLTTL bounds how long a presigned part upload URL stays valid.
const PartURLTTL = time.Hour

var tracer = otel.Tracer("classtream-upload")

// VideoStore is the metadata persistence the coordinator needs.
type VideoStore interface {
	CreateVideo(ctx context.Context, v *models.VideoAsset) error
	UpdateVideoMetadata(ctx context.Context, videoID string, update models.VideoMetadataUpdate) error
}

// session tracks one in-flight multipart upload. Sessions are single-use:
// Complete consumes them.
type session struct {
	videoID   string
	fileKey   string
	uploadID  string
	createdAt time.Time
}

// Coordinator brokers browser-direct multipart uploads. The API never sees
// payload bytes: clients upload parts straight to the object store with
// presigned URLs, and the coordinator only stitches the pieces together.
type Coordinator struct {
	store    storage.ObjectStore
	videos   VideoStore
	enqueuer queue.Enqueuer
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session // keyed by uploadID
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(store storage.ObjectStore, videos VideoStore, enqueuer queue.Enqueuer, log *slog.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		videos:   videos,
		enqueuer: enqueuer,
		log:      log,
		sessions: make(map[string]*session),
	}
}

// InitiateRequest describes a new upload.
type InitiateRequest struct {
	Title       string
	Description string
	ClassID     string
	TeacherID   string
}

// InitiateResult carries everything the client needs to start uploading.
type InitiateResult struct {
	VideoID  string `json:"videoId"`
	UploadID string `json:"uploadId"`
	FileKey  string `json:"fileKey"`
}

// Initiate reserves a raw video key, opens a multipart upload, and persists
// the video record with zero file size.
func (c *Coordinator) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	ctx, span := tracer.Start(ctx, "initiate-upload")
	defer span.End()

	videoID := uuid.New().String()
	fileKey := storage.RawVideoKey(req.TeacherID, uuid.New().String())
	span.SetAttributes(attribute.String("video.id", videoID))

	uploadID, err := c.store.CreateMultipartUpload(ctx, fileKey, "video/mp4")
	if err != nil {
		return nil, fmt.Errorf("failed to open multipart upload: %w", err)
	}

	video := &models.VideoAsset{
		ID:          videoID,
		Title:       req.Title,
		Description: req.Description,
		ClassID:     req.ClassID,
		TeacherID:   req.TeacherID,
		FileKey:     fileKey,
	}
	if err := c.videos.CreateVideo(ctx, video); err != nil {
		// Roll back the store-side upload so abandoned parts don't accrue.
		if abortErr := c.store.AbortMultipartUpload(ctx, fileKey, uploadID); abortErr != nil {
			logger.Error(ctx, c.log, "Failed to abort orphaned multipart upload",
				"fileKey", fileKey,
				"error", abortErr,
			)
		}
		return nil, fmt.Errorf("failed to create video record: %w", err)
	}

	c.mu.Lock()
	c.sessions[uploadID] = &session{
		videoID:   videoID,
		fileKey:   fileKey,
		uploadID:  uploadID,
		createdAt: time.Now(),
	}
	c.mu.Unlock()

	metrics.UploadsInitiated.Inc()
	logger.Info(ctx, c.log, "Multipart upload initiated",
		"videoId", videoID,
		"fileKey", fileKey,
	)

	return &InitiateResult{
		VideoID:  videoID,
		UploadID: uploadID,
		FileKey:  fileKey,
	}, nil
}

// SignPartURL presigns an upload URL for one part of an active session.
func (c *Coordinator) SignPartURL(ctx context.Context, uploadID string, partNumber int32) (string, error) {
	if partNumber < 1 {
		return "", fmt.Errorf("%w: part number must be positive", models.ErrInvalidPartList)
	}

	sess, err := c.lookup(uploadID)
	if err != nil {
		return "", err
	}

	url, err := c.store.SignUploadPartURL(ctx, sess.fileKey, uploadID, partNumber, PartURLTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign part URL: %w", err)
	}
	return url, nil
}

// CompleteResult reports the finished upload and the processing kicked off.
type CompleteResult struct {
	VideoID       string `json:"videoId"`
	FileSizeBytes int64  `json:"fileSize"`
	HLSJobID      string `json:"hlsJobId,omitempty"`
	ThumbnailJob  string `json:"thumbnailJobId,omitempty"`
}

// Complete finalizes the multipart upload and enqueues post-processing.
// Parts must form a gapless sequence 1..N or the whole upload is rejected
// before the store is touched.
func (c *Coordinator) Complete(ctx context.Context, uploadID string, parts []storage.CompletedPart) (*CompleteResult, error) {
	ctx, span := tracer.Start(ctx, "complete-upload")
	defer span.End()

	if err := validateParts(parts); err != nil {
		return nil, err
	}

	sess, err := c.consume(uploadID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("video.id", sess.videoID))

	if _, err := c.store.CompleteMultipartUpload(ctx, sess.fileKey, uploadID, parts); err != nil {
		// Completion failed; the session stays consumed. The client must
		// initiate a fresh upload rather than replay stale part ETags, so
		// abort the store side to discard the orphaned parts.
		if abortErr := c.store.AbortMultipartUpload(ctx, sess.fileKey, uploadID); abortErr != nil {
			logger.Error(ctx, c.log, "Failed to abort multipart upload after failed completion",
				"fileKey", sess.fileKey,
				"error", abortErr,
			)
		}
		return nil, fmt.Errorf("failed to complete multipart upload: %w", err)
	}

	size, err := c.store.Head(ctx, sess.fileKey)
	if err != nil {
		logger.Error(ctx, c.log, "Failed to read uploaded object size",
			"fileKey", sess.fileKey,
			"error", err,
		)
		size = 0
	}

	if size > 0 {
		if err := c.videos.UpdateVideoMetadata(ctx, sess.videoID, models.VideoMetadataUpdate{
			FileSizeBytes: &size,
		}); err != nil {
			logger.Error(ctx, c.log, "Failed to record file size",
				"videoId", sess.videoID,
				"error", err,
			)
		}
	}

	result := &CompleteResult{VideoID: sess.videoID, FileSizeBytes: size}

	// Post-processing is fire-and-forget: the response never waits on it.
	hlsID, err := c.enqueuer.Enqueue(ctx, models.JobGenerateHLS, sess.videoID, sess.fileKey)
	if err != nil {
		logger.Error(ctx, c.log, "Failed to enqueue HLS job", "videoId", sess.videoID, "error", err)
	} else {
		result.HLSJobID = hlsID
	}

	thumbID, err := c.enqueuer.Enqueue(ctx, models.JobGenerateThumbnail, sess.videoID, sess.fileKey)
	if err != nil {
		logger.Error(ctx, c.log, "Failed to enqueue thumbnail job", "videoId", sess.videoID, "error", err)
	} else {
		result.ThumbnailJob = thumbID
	}

	metrics.UploadsCompleted.Inc()
	logger.Info(ctx, c.log, "Upload completed",
		"videoId", sess.videoID,
		"fileKey", sess.fileKey,
		"parts", len(parts),
		"size", size,
	)

	return result, nil
}

// Abort cancels an active session and discards its uploaded parts.
func (c *Coordinator) Abort(ctx context.Context, uploadID string) error {
	sess, err := c.consume(uploadID)
	if err != nil {
		return err
	}
	if err := c.store.AbortMultipartUpload(ctx, sess.fileKey, uploadID); err != nil {
		return fmt.Errorf("failed to abort multipart upload: %w", err)
	}
	logger.Info(ctx, c.log, "Multipart upload aborted", "videoId", sess.videoID)
	return nil
}

func (c *Coordinator) lookup(uploadID string) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[uploadID]
	if !ok {
		return nil, models.ErrInvalidSession
	}
	return sess, nil
}

func (c *Coordinator) consume(uploadID string) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[uploadID]
	if !ok {
		return nil, models.ErrInvalidSession
	}
	delete(c.sessions, uploadID)
	return sess, nil
}

// validateParts rejects empty, duplicated, or gapped part lists. Accepted
// lists are sorted in place into ascending part order.
func validateParts(parts []storage.CompletedPart) error {
	if len(parts) == 0 {
		return fmt.Errorf("%w: no parts supplied", models.ErrIncompleteUpload)
	}

	sort.Slice(parts, func(i, j int) bool {
		return parts[i].PartNumber < parts[j].PartNumber
	})

	for i, p := range parts {
		if p.ETag == "" {
			return fmt.Errorf("%w: part %d missing etag", models.ErrInvalidPartList, p.PartNumber)
		}
		want := int32(i + 1)
		if p.PartNumber != want {
			return fmt.Errorf("%w: expected part %d, got %d", models.ErrIncompleteUpload, want, p.PartNumber)
		}
	}
	return nil
}
