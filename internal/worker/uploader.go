package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"github.com/classtream/classtream/internal/storage"
	"github.com/classtream/classtream/pkg/models"
)

// MaxConcurrentUploads bounds parallel segment uploads per job.
const MaxConcurrentUploads = 20

// Uploader pushes transcoded HLS output to the object store.
type Uploader struct {
	store storage.ObjectStore
	log   *slog.Logger
}

// NewUploader creates an Uploader.
func NewUploader(store storage.ObjectStore, log *slog.Logger) *Uploader {
	return &Uploader{store: store, log: log}
}

// UploadHLS walks hlsDir and uploads every file under the video's HLS
// prefix, segments in parallel. The first upload error wins; remaining
// uploads are skipped.
func (u *Uploader) UploadHLS(ctx context.Context, videoID, hlsDir string) error {
	ctx, span := tracer.Start(ctx, "upload-hls")
	defer span.End()

	var filesUploaded atomic.Int64
	var totalBytes atomic.Int64
	var firstErr atomic.Pointer[error]

	sem := make(chan struct{}, MaxConcurrentUploads)
	var wg sync.WaitGroup

	prefix := storage.HLSPrefix(videoID)

	walkErr := filepath.Walk(hlsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if firstErr.Load() != nil {
			return nil
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return fmt.Errorf("%w: during upload walk", models.ErrContextCanceled)
		}

		wg.Add(1)
		go func(filePath string, fileInfo os.FileInfo) {
			defer wg.Done()
			defer func() { <-sem }()

			if firstErr.Load() != nil {
				return
			}

			relPath, err := filepath.Rel(hlsDir, filePath)
			if err != nil {
				wrappedErr := fmt.Errorf("failed to get relative path: %w", err)
				firstErr.CompareAndSwap(nil, &wrappedErr)
				return
			}
			key := prefix + relPath

			file, err := os.Open(filePath)
			if err != nil {
				wrappedErr := fmt.Errorf("failed to open file %s: %w", filePath, err)
				firstErr.CompareAndSwap(nil, &wrappedErr)
				return
			}
			defer file.Close()

			contentType := storage.ContentTypeForFile(filePath)
			if err := u.store.Put(ctx, key, file, contentType); err != nil {
				wrappedErr := fmt.Errorf("failed to upload %s: %w", key, err)
				firstErr.CompareAndSwap(nil, &wrappedErr)
				return
			}

			filesUploaded.Add(1)
			totalBytes.Add(fileInfo.Size())

			u.log.DebugContext(ctx, "Uploaded file", "key", key)
		}(path, info)

		return nil
	})

	wg.Wait()

	if walkErr != nil {
		return walkErr
	}
	if errPtr := firstErr.Load(); errPtr != nil {
		return *errPtr
	}

	uploaded := filesUploaded.Load()
	bytes := totalBytes.Load()

	span.SetAttributes(
		attribute.Int64("files.uploaded", uploaded),
		attribute.Int64("bytes.total", bytes),
	)

	u.log.InfoContext(ctx, "HLS upload complete",
		"videoId", videoID,
		"filesUploaded", uploaded,
		"totalBytes", bytes,
	)

	return nil
}

// UploadFile uploads a single local file to the given key.
func (u *Uploader) UploadFile(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", localPath, err)
	}
	defer file.Close()

	if err := u.store.Put(ctx, key, file, storage.ContentTypeForFile(localPath)); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
