package models

import "fmt"

// JobType identifies the work a ProcessingJob carries.
type JobType string

const (
	JobGenerateHLS       JobType = "generate_hls"
	JobGenerateThumbnail JobType = "generate_thumbnail"
	JobCleanupTempFiles  JobType = "cleanup_temp_files"
)

// IsValid returns true if the job type is known.
func (t JobType) IsValid() bool {
	switch t {
	case JobGenerateHLS, JobGenerateThumbnail, JobCleanupTempFiles:
		return true
	}
	return false
}

// ProcessingJob is one unit of asynchronous video work. Attempt starts at 1
// on first delivery; the consumer re-enqueues with Attempt+1 until MaxAttempts.
type ProcessingJob struct {
	ID          string  `json:"id"`
	Type        JobType `json:"type"`
	VideoID     string  `json:"videoId,omitempty"`
	FileKey     string  `json:"fileKey,omitempty"`
	Attempt     int     `json:"attempt"`
	MaxAttempts int     `json:"maxAttempts"`
}

// Validate checks the job payload for the fields its type requires.
func (j *ProcessingJob) Validate() error {
	if !j.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownJobType, j.Type)
	}
	if j.Type == JobCleanupTempFiles {
		return nil
	}
	if j.VideoID == "" {
		return ErrMissingVideoID
	}
	if j.FileKey == "" {
		return ErrMissingFileKey
	}
	return nil
}
