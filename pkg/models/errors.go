package models

import "errors"

// Sentinel errors for the video pipeline.
var (
	// Infrastructure errors (5xx-equivalent, retryable by the queue)
	ErrStoreUnavailable = errors.New("object store unavailable")
	ErrQueueDegraded    = errors.New("job queue degraded")

	// Processing errors
	ErrJobParseFailed  = errors.New("failed to parse job")
	ErrUnknownJobType  = errors.New("unknown job type")
	ErrDownloadFailed  = errors.New("failed to download video")
	ErrTranscodeFailed = errors.New("failed to transcode video")
	ErrUploadFailed    = errors.New("failed to upload derived files")
	ErrFFmpegFailed    = errors.New("ffmpeg execution failed")
	ErrContextCanceled = errors.New("context canceled")

	// Multipart upload errors (client-facing, not retried server-side)
	ErrIncompleteUpload = errors.New("upload parts are not contiguous")
	ErrInvalidSession   = errors.New("unknown or completed upload session")

	// Storage errors
	ErrVideoNotFound = errors.New("video not found")

	// Validation errors
	ErrMissingVideoID   = errors.New("videoId is required")
	ErrMissingFileKey   = errors.New("fileKey is required")
	ErrInvalidPartList  = errors.New("parts list is invalid")
	ErrInvalidKeyFormat = errors.New("invalid key format")
)
