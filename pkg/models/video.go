package models

import "time"

// VideoAsset is the metadata record for one uploaded lecture video.
// file_size is authoritative only after upload completion; duration, hls_key
// and thumbnail_key are written by the processing worker.
type VideoAsset struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	ClassID         string    `json:"classId"`
	TeacherID       string    `json:"teacherId"`
	FileKey         string    `json:"fileKey"`
	FileSizeBytes   int64     `json:"fileSizeBytes"`
	DurationSeconds *int      `json:"durationSeconds,omitempty"`
	HLSKey          *string   `json:"hlsKey,omitempty"`
	ThumbnailKey    *string   `json:"thumbnailKey,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// VideoMetadataUpdate is a partial update for a VideoAsset. Nil fields are
// left untouched so concurrent hls/thumbnail jobs never clobber each other.
type VideoMetadataUpdate struct {
	FileSizeBytes   *int64
	DurationSeconds *int
	HLSKey          *string
	ThumbnailKey    *string
}

// IsZero reports whether the update would change nothing.
func (u VideoMetadataUpdate) IsZero() bool {
	return u.FileSizeBytes == nil && u.DurationSeconds == nil &&
		u.HLSKey == nil && u.ThumbnailKey == nil
}

// VideoView tracks one student's watch progress for a video.
type VideoView struct {
	VideoID              string    `json:"videoId"`
	StudentID            string    `json:"studentId"`
	FirstWatchedAt       time.Time `json:"firstWatchedAt"`
	LastWatchedAt        time.Time `json:"lastWatchedAt"`
	WatchDurationSeconds int       `json:"watchDurationSeconds"`
	CompletionPercentage float64   `json:"completionPercentage"`
	IsCompleted          bool      `json:"isCompleted"`
}
