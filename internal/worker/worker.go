package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/classtream/classtream/internal/logger"
	"github.com/classtream/classtream/internal/metrics"
	"github.com/classtream/classtream/internal/storage"
	"github.com/classtream/classtream/internal/transcoder"
	"github.com/classtream/classtream/pkg/models"
)

var tracer = otel.Tracer("classtream-worker")

// MediaTranscoder is the ffmpeg surface the processor needs.
type MediaTranscoder interface {
	TranscodeToHLS(ctx context.Context, inputPath, hlsDir string) error
	ExtractThumbnail(ctx context.Context, inputPath, outputPath string, seek int) error
	ProbeDuration(ctx context.Context, inputPath string) (int, error)
}

// MetadataStore persists derived asset fields.
type MetadataStore interface {
	UpdateVideoMetadata(ctx context.Context, videoID string, update models.VideoMetadataUpdate) error
}

// Config holds processor dependencies.
type Config struct {
	Store      storage.ObjectStore
	Metadata   MetadataStore
	Transcoder MediaTranscoder
	Scratch    *Scratch
	Logger     *slog.Logger
}

// Processor executes processing jobs. Each job type writes a disjoint set of
// metadata fields, so HLS and thumbnail jobs for the same video can run
// concurrently without clobbering each other.
type Processor struct {
	metadata   MetadataStore
	transcoder MediaTranscoder
	downloader *Downloader
	uploader   *Uploader
	scratch    *Scratch
	log        *slog.Logger
}

// New creates a Processor.
func New(cfg *Config) *Processor {
	return &Processor{
		metadata:   cfg.Metadata,
		transcoder: cfg.Transcoder,
		downloader: NewDownloader(cfg.Store, cfg.Scratch, cfg.Logger),
		uploader:   NewUploader(cfg.Store, cfg.Logger),
		scratch:    cfg.Scratch,
		log:        cfg.Logger,
	}
}

// Handle dispatches one job by type.
func (p *Processor) Handle(ctx context.Context, job *models.ProcessingJob) error {
	switch job.Type {
	case models.JobGenerateHLS:
		return p.generateHLS(ctx, job)
	case models.JobGenerateThumbnail:
		return p.generateThumbnail(ctx, job)
	case models.JobCleanupTempFiles:
		return p.cleanupTempFiles(ctx)
	default:
		return fmt.Errorf("%w: %s", models.ErrUnknownJobType, job.Type)
	}
}

// generateHLS downloads the raw video, packages it to HLS, uploads the
// output, and records the manifest key and probed duration.
func (p *Processor) generateHLS(ctx context.Context, job *models.ProcessingJob) error {
	ctx, span := tracer.Start(ctx, "generate-hls")
	defer span.End()
	span.SetAttributes(attribute.String("video.id", job.VideoID))

	logger.Info(ctx, p.log, "Generating HLS stream",
		"videoId", job.VideoID,
		"fileKey", job.FileKey,
	)

	downloadStart := time.Now()
	localPath, err := p.downloader.Download(ctx, job.VideoID, job.FileKey)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrDownloadFailed, err)
	}
	metrics.DownloadDuration.Observe(time.Since(downloadStart).Seconds())
	defer p.scratch.Remove(localPath)

	if ctx.Err() != nil {
		return fmt.Errorf("%w: before transcoding", models.ErrContextCanceled)
	}

	hlsDir, err := p.scratch.JobDir(job.VideoID, "hls")
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrTranscodeFailed, err)
	}
	defer p.scratch.Remove(hlsDir)

	if err := p.transcoder.TranscodeToHLS(ctx, localPath, hlsDir); err != nil {
		return err
	}

	duration, err := p.transcoder.ProbeDuration(ctx, localPath)
	if err != nil {
		return fmt.Errorf("%w: probe duration: %v", models.ErrTranscodeFailed, err)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("%w: before upload", models.ErrContextCanceled)
	}

	uploadStart := time.Now()
	if err := p.uploader.UploadHLS(ctx, job.VideoID, hlsDir); err != nil {
		return fmt.Errorf("%w: %v", models.ErrUploadFailed, err)
	}
	metrics.UploadDuration.Observe(time.Since(uploadStart).Seconds())

	manifestKey := storage.HLSManifestKey(job.VideoID)
	update := models.VideoMetadataUpdate{HLSKey: &manifestKey, DurationSeconds: &duration}
	if err := p.metadata.UpdateVideoMetadata(ctx, job.VideoID, update); err != nil {
		return fmt.Errorf("failed to record HLS manifest: %w", err)
	}

	logger.Info(ctx, p.log, "HLS stream ready",
		"videoId", job.VideoID,
		"manifestKey", manifestKey,
		"durationSeconds", duration,
	)
	return nil
}

// generateThumbnail extracts a poster frame 10% into the video and records
// the thumbnail key. Only the thumbnail field is written.
func (p *Processor) generateThumbnail(ctx context.Context, job *models.ProcessingJob) error {
	ctx, span := tracer.Start(ctx, "generate-thumbnail")
	defer span.End()
	span.SetAttributes(attribute.String("video.id", job.VideoID))

	logger.Info(ctx, p.log, "Generating thumbnail",
		"videoId", job.VideoID,
		"fileKey", job.FileKey,
	)

	downloadStart := time.Now()
	localPath, err := p.downloader.Download(ctx, job.VideoID, job.FileKey)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrDownloadFailed, err)
	}
	metrics.DownloadDuration.Observe(time.Since(downloadStart).Seconds())
	defer p.scratch.Remove(localPath)

	duration, err := p.transcoder.ProbeDuration(ctx, localPath)
	if err != nil {
		return fmt.Errorf("%w: probe duration: %v", models.ErrTranscodeFailed, err)
	}
	seek := transcoder.ThumbnailSeek(duration)

	thumbDir, err := p.scratch.JobDir(job.VideoID, "thumbnails")
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrTranscodeFailed, err)
	}
	defer p.scratch.Remove(thumbDir)

	thumbPath := thumbDir + "/thumbnail.jpg"
	if err := p.transcoder.ExtractThumbnail(ctx, localPath, thumbPath, seek); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return fmt.Errorf("%w: before upload", models.ErrContextCanceled)
	}

	key := storage.ThumbnailKey(job.VideoID)
	uploadStart := time.Now()
	if err := p.uploader.UploadFile(ctx, thumbPath, key); err != nil {
		return fmt.Errorf("%w: %v", models.ErrUploadFailed, err)
	}
	metrics.UploadDuration.Observe(time.Since(uploadStart).Seconds())

	if err := p.metadata.UpdateVideoMetadata(ctx, job.VideoID, models.VideoMetadataUpdate{
		ThumbnailKey: &key,
	}); err != nil {
		return fmt.Errorf("failed to record thumbnail: %w", err)
	}

	logger.Info(ctx, p.log, "Thumbnail ready",
		"videoId", job.VideoID,
		"thumbnailKey", key,
		"seekSeconds", seek,
	)
	return nil
}

// cleanupTempFiles sweeps stale scratch entries.
func (p *Processor) cleanupTempFiles(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "cleanup-temp-files")
	defer span.End()

	reclaimed, err := p.scratch.CleanupSweep(time.Now())
	if err != nil {
		return fmt.Errorf("cleanup sweep failed: %w", err)
	}
	span.SetAttributes(attribute.Int("entries.reclaimed", reclaimed))

	logger.Info(ctx, p.log, "Scratch cleanup complete", "reclaimed", reclaimed)
	return nil
}
