package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"

	"github.com/classtream/classtream/internal/storage"
)

// Downloader streams raw videos from the object store into scratch space.
type Downloader struct {
	store   storage.ObjectStore
	scratch *Scratch
	log     *slog.Logger
}

// NewDownloader creates a Downloader.
func NewDownloader(store storage.ObjectStore, scratch *Scratch, log *slog.Logger) *Downloader {
	return &Downloader{store: store, scratch: scratch, log: log}
}

// Download streams the object at fileKey into a scratch file and returns the
// local path. The payload never lands in memory whole.
func (d *Downloader) Download(ctx context.Context, videoID, fileKey string) (string, error) {
	ctx, span := tracer.Start(ctx, "download-video")
	defer span.End()

	dir, err := d.scratch.JobDir(videoID, "downloads")
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(fileKey)
	tmpFile, err := os.CreateTemp(dir, fmt.Sprintf("video-*%s", ext))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	body, err := d.store.Get(ctx, fileKey)
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to get object: %w", err)
	}
	defer body.Close()

	written, err := io.Copy(tmpFile, body)
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	span.SetAttributes(attribute.Int64("video.size_bytes", written))
	d.log.InfoContext(ctx, "Downloaded video",
		"videoId", videoID,
		"sizeBytes", written,
	)

	return tmpPath, nil
}
