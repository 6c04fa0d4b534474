package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classtream/classtream/pkg/models"
)

// VideoRepository handles video metadata storage in Postgres.
type VideoRepository struct {
	pool *pgxpool.Pool
}

// NewVideoRepository connects to Postgres and verifies the connection.
func NewVideoRepository(ctx context.Context, databaseURL string) (*VideoRepository, error) {
	if databaseURL == "" {
		return nil, errors.New("database URL is required")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &VideoRepository{pool: pool}, nil
}

// NewVideoRepositoryFromPool creates a VideoRepository from an existing pool.
func NewVideoRepositoryFromPool(pool *pgxpool.Pool) *VideoRepository {
	return &VideoRepository{pool: pool}
}

// Close releases the connection pool.
func (r *VideoRepository) Close() {
	r.pool.Close()
}

// Ping verifies database connectivity, for health checks.
func (r *VideoRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// CreateVideo inserts a new video row. The raw key is reserved at upload
// initiation; file_size stays 0 until the upload completes.
func (r *VideoRepository) CreateVideo(ctx context.Context, v *models.VideoAsset) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO videos (id, title, description, class_id, teacher_id, file_key, file_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		v.ID, v.Title, v.Description, v.ClassID, v.TeacherID, v.FileKey, v.FileSizeBytes,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create video: %w", err)
	}
	return nil
}

// GetVideo retrieves video metadata by ID.
func (r *VideoRepository) GetVideo(ctx context.Context, videoID string) (*models.VideoAsset, error) {
	var v models.VideoAsset
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, description, class_id, teacher_id, file_key, file_size,
		       duration, hls_key, thumbnail_key, created_at, updated_at
		FROM videos WHERE id = $1`,
		videoID,
	).Scan(&v.ID, &v.Title, &v.Description, &v.ClassID, &v.TeacherID, &v.FileKey,
		&v.FileSizeBytes, &v.DurationSeconds, &v.HLSKey, &v.ThumbnailKey,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrVideoNotFound
		}
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return &v, nil
}

// UpdateVideoMetadata applies a partial update in a single statement.
// Fields not supplied are never clobbered.
func (r *VideoRepository) UpdateVideoMetadata(ctx context.Context, videoID string, update models.VideoMetadataUpdate) error {
	if update.IsZero() {
		return nil
	}

	set := []string{"updated_at = NOW()"}
	args := []any{}
	arg := 1

	appendSet := func(column string, value any) {
		set = append(set, fmt.Sprintf("%s = $%d", column, arg))
		args = append(args, value)
		arg++
	}

	if update.FileSizeBytes != nil {
		appendSet("file_size", *update.FileSizeBytes)
	}
	if update.DurationSeconds != nil {
		appendSet("duration", *update.DurationSeconds)
	}
	if update.HLSKey != nil {
		appendSet("hls_key", *update.HLSKey)
	}
	if update.ThumbnailKey != nil {
		appendSet("thumbnail_key", *update.ThumbnailKey)
	}

	args = append(args, videoID)
	query := fmt.Sprintf("UPDATE videos SET %s WHERE id = $%d", strings.Join(set, ", "), arg)

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrVideoNotFound
	}
	return nil
}

// DeleteVideo removes the row and returns the deleted asset so the caller
// can cascade object-store deletions.
func (r *VideoRepository) DeleteVideo(ctx context.Context, videoID, teacherID string) (*models.VideoAsset, error) {
	var v models.VideoAsset
	err := r.pool.QueryRow(ctx, `
		DELETE FROM videos WHERE id = $1 AND teacher_id = $2
		RETURNING id, title, description, class_id, teacher_id, file_key, file_size,
		          duration, hls_key, thumbnail_key, created_at, updated_at`,
		videoID, teacherID,
	).Scan(&v.ID, &v.Title, &v.Description, &v.ClassID, &v.TeacherID, &v.FileKey,
		&v.FileSizeBytes, &v.DurationSeconds, &v.HLSKey, &v.ThumbnailKey,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrVideoNotFound
		}
		return nil, fmt.Errorf("failed to delete video: %w", err)
	}
	return &v, nil
}

// ListClassVideos retrieves videos for a class, newest first.
func (r *VideoRepository) ListClassVideos(ctx context.Context, classID string, limit, offset int) ([]models.VideoAsset, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, description, class_id, teacher_id, file_key, file_size,
		       duration, hls_key, thumbnail_key, created_at, updated_at
		FROM videos WHERE class_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		classID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	var videos []models.VideoAsset
	for rows.Next() {
		var v models.VideoAsset
		if err := rows.Scan(&v.ID, &v.Title, &v.Description, &v.ClassID, &v.TeacherID,
			&v.FileKey, &v.FileSizeBytes, &v.DurationSeconds, &v.HLSKey, &v.ThumbnailKey,
			&v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// TrackView accumulates a student's watch progress.
//
// The accumulation (watch_duration + delta) double-counts when a client
// retries the same report; preserved as-is pending a product decision on
// idempotent view reporting.
func (r *VideoRepository) TrackView(ctx context.Context, videoID, studentID string, progressSeconds, durationSeconds int) error {
	completion := 0.0
	if durationSeconds > 0 {
		completion = float64(progressSeconds) / float64(durationSeconds) * 100
		if completion > 100 {
			completion = 100
		}
	}
	completed := completion >= 90

	_, err := r.pool.Exec(ctx, `
		INSERT INTO video_views (video_id, student_id, first_watched_at, last_watched_at,
		                         watch_duration, completion_percentage, is_completed)
		VALUES ($1, $2, NOW(), NOW(), $3, $4, $5)
		ON CONFLICT (video_id, student_id)
		DO UPDATE SET
		  last_watched_at = NOW(),
		  watch_duration = video_views.watch_duration + $3,
		  completion_percentage = GREATEST(video_views.completion_percentage, $4),
		  is_completed = video_views.is_completed OR $5`,
		videoID, studentID, progressSeconds, completion, completed,
	)
	if err != nil {
		return fmt.Errorf("failed to track view: %w", err)
	}
	return nil
}

// ListViews retrieves view records for a video, newest first watch first.
func (r *VideoRepository) ListViews(ctx context.Context, videoID string) ([]models.VideoView, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT video_id, student_id, first_watched_at, last_watched_at,
		       watch_duration, completion_percentage, is_completed
		FROM video_views WHERE video_id = $1
		ORDER BY first_watched_at DESC`,
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}
	defer rows.Close()

	var views []models.VideoView
	for rows.Next() {
		var v models.VideoView
		if err := rows.Scan(&v.VideoID, &v.StudentID, &v.FirstWatchedAt, &v.LastWatchedAt,
			&v.WatchDurationSeconds, &v.CompletionPercentage, &v.IsCompleted); err != nil {
			return nil, fmt.Errorf("failed to scan view: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// RecordJobFailure persists a terminal processing failure so the asset's
// missing derived keys can be explained after the fact.
func (r *VideoRepository) RecordJobFailure(ctx context.Context, videoID, jobType, errorMessage string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO video_jobs (video_id, job_type, status, error_message, completed_at)
		VALUES ($1, $2, 'failed', $3, NOW())`,
		videoID, jobType, errorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to record job failure: %w", err)
	}
	return nil
}
