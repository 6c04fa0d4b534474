package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/classtream/classtream/internal/auth"
	"github.com/classtream/classtream/internal/config"
	"github.com/classtream/classtream/internal/storage"
	"github.com/classtream/classtream/internal/upload"
	"github.com/classtream/classtream/pkg/models"
)

var tracer = otel.Tracer("classtream-api")

// Configuration constants
const (
	MaxRequestBodySize = 1 << 20 // 1 MB
	DefaultListLimit   = 50
	MaxListLimit       = 200
)

// VideoStore is the metadata persistence surface the handlers need.
type VideoStore interface {
	GetVideo(ctx context.Context, videoID string) (*models.VideoAsset, error)
	DeleteVideo(ctx context.Context, videoID, teacherID string) (*models.VideoAsset, error)
	ListClassVideos(ctx context.Context, classID string, limit, offset int) ([]models.VideoAsset, error)
	TrackView(ctx context.Context, videoID, studentID string, progressSeconds, durationSeconds int) error
	ListViews(ctx context.Context, videoID string) ([]models.VideoView, error)
}

// Handlers contains all HTTP handlers for the API.
type Handlers struct {
	cfg         *config.Config
	log         *slog.Logger
	store       storage.ObjectStore
	videos      VideoStore
	coordinator *upload.Coordinator
	jwtService  *auth.JWTService
}

// HandlersConfig holds dependencies for handlers.
type HandlersConfig struct {
	Config      *config.Config
	Logger      *slog.Logger
	Store       storage.ObjectStore
	Videos      VideoStore
	Coordinator *upload.Coordinator
	JWTService  *auth.JWTService
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg *HandlersConfig) *Handlers {
	return &Handlers{
		cfg:         cfg.Config,
		log:         cfg.Logger,
		store:       cfg.Store,
		videos:      cfg.Videos,
		coordinator: cfg.Coordinator,
		jwtService:  cfg.JWTService,
	}
}

// writeJSON writes a JSON response.
func (h *Handlers) writeJSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.ErrorContext(ctx, "Failed to encode JSON response", "error", err)
	}
}

// writeError writes an error response.
func (h *Handlers) writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	h.writeJSON(ctx, w, status, map[string]string{"error": message})
}

// decodeBody decodes a size-limited JSON request body into dst.
func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(dst)
}

func (h *Handlers) handleDecodeError(ctx context.Context, w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		h.writeError(ctx, w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	h.writeError(ctx, w, http.StatusBadRequest, "Invalid request body")
}

// LoginHandler handles user authentication and returns a JWT token.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientIP := auth.GetClientIP(r)

	username, password, ok := r.BasicAuth()
	if !ok {
		h.writeError(ctx, w, http.StatusUnauthorized, "Missing credentials")
		return
	}

	expectedUsername, expectedPassword, err := h.cfg.GetAPICredentials()
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to get API credentials", "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Server configuration error")
		return
	}

	if username != expectedUsername || password != expectedPassword {
		h.log.WarnContext(ctx, "Failed login attempt", "username", username, "ip", clientIP)
		h.writeError(ctx, w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.jwtService.GenerateToken(username, auth.RoleTeacher)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to generate token", "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	h.log.InfoContext(ctx, "Successful login", "username", username, "ip", clientIP)
	h.writeJSON(ctx, w, http.StatusOK, map[string]string{"token": token})
}

// InitUploadRequest is the request payload for upload initialization.
type InitUploadRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ClassID     string `json:"classId"`
}

// InitUploadHandler opens a multipart upload session for the caller.
func (h *Handlers) InitUploadHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID := uuid.New().String()
	ctx, span := tracer.Start(ctx, "init-upload-handler",
		trace.WithAttributes(
			attribute.String("handler", "init-upload"),
			attribute.String("request.id", requestID),
		))
	defer span.End()

	claims, ok := auth.GetClaimsFromContext(ctx)
	if !ok {
		h.writeError(ctx, w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req InitUploadRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		span.RecordError(err)
		h.handleDecodeError(ctx, w, err)
		return
	}

	if req.Title == "" {
		h.writeError(ctx, w, http.StatusBadRequest, "title is required")
		return
	}
	if req.ClassID == "" {
		h.writeError(ctx, w, http.StatusBadRequest, "classId is required")
		return
	}

	result, err := h.coordinator.Initiate(ctx, upload.InitiateRequest{
		Title:       req.Title,
		Description: req.Description,
		ClassID:     req.ClassID,
		TeacherID:   claims.UserID,
	})
	if err != nil {
		span.RecordError(err)
		h.log.ErrorContext(ctx, "Failed to initiate upload",
			"error", err,
			"requestId", requestID,
		)
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}

	span.SetAttributes(attribute.String("video.id", result.VideoID))
	h.writeJSON(ctx, w, http.StatusOK, result)
}

// PartURLRequest is the request payload for a presigned part URL.
type PartURLRequest struct {
	UploadID   string `json:"uploadId"`
	PartNumber int32  `json:"partNumber"`
}

// PartURLHandler presigns an upload URL for one part of an active session.
func (h *Handlers) PartURLHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PartURLRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.handleDecodeError(ctx, w, err)
		return
	}

	if req.UploadID == "" {
		h.writeError(ctx, w, http.StatusBadRequest, "uploadId is required")
		return
	}

	url, err := h.coordinator.SignPartURL(ctx, req.UploadID, req.PartNumber)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidSession):
			h.writeError(ctx, w, http.StatusNotFound, "Unknown upload session")
		case errors.Is(err, models.ErrInvalidPartList):
			h.writeError(ctx, w, http.StatusBadRequest, err.Error())
		default:
			h.log.ErrorContext(ctx, "Failed to sign part URL", "error", err)
			h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]string{"uploadUrl": url})
}

// CompleteUploadRequest is the request payload for completing an upload.
type CompleteUploadRequest struct {
	UploadID string                  `json:"uploadId"`
	Parts    []storage.CompletedPart `json:"parts"`
}

// CompleteUploadHandler finalizes the upload and queues post-processing.
func (h *Handlers) CompleteUploadHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID := uuid.New().String()
	ctx, span := tracer.Start(ctx, "complete-upload-handler",
		trace.WithAttributes(
			attribute.String("handler", "complete-upload"),
			attribute.String("request.id", requestID),
		))
	defer span.End()

	var req CompleteUploadRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		span.RecordError(err)
		h.handleDecodeError(ctx, w, err)
		return
	}

	if req.UploadID == "" {
		h.writeError(ctx, w, http.StatusBadRequest, "uploadId is required")
		return
	}

	result, err := h.coordinator.Complete(ctx, req.UploadID, req.Parts)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, models.ErrInvalidSession):
			h.writeError(ctx, w, http.StatusNotFound, "Unknown upload session")
		case errors.Is(err, models.ErrIncompleteUpload), errors.Is(err, models.ErrInvalidPartList):
			h.writeError(ctx, w, http.StatusBadRequest, err.Error())
		default:
			h.log.ErrorContext(ctx, "Failed to complete upload",
				"error", err,
				"requestId", requestID,
			)
			h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(ctx, w, http.StatusAccepted, result)
}

// AbortUploadRequest is the request payload for aborting an upload.
type AbortUploadRequest struct {
	UploadID string `json:"uploadId"`
}

// AbortUploadHandler cancels an active upload session.
func (h *Handlers) AbortUploadHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AbortUploadRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.handleDecodeError(ctx, w, err)
		return
	}

	if err := h.coordinator.Abort(ctx, req.UploadID); err != nil {
		if errors.Is(err, models.ErrInvalidSession) {
			h.writeError(ctx, w, http.StatusNotFound, "Unknown upload session")
			return
		}
		h.log.ErrorContext(ctx, "Failed to abort upload", "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]string{"status": "aborted"})
}

// VideoResponse is a video record with playback URLs attached.
type VideoResponse struct {
	models.VideoAsset
	PlaybackURL  string `json:"playbackUrl,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// GetVideoHandler returns one video with signed playback and thumbnail URLs.
// Playback serves the HLS manifest once transcoding finishes and the raw
// upload until then; the thumbnail URL appears only after its job completes.
func (h *Handlers) GetVideoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID := r.PathValue("id")
	if videoID == "" {
		h.writeError(ctx, w, http.StatusBadRequest, "video id is required")
		return
	}

	video, err := h.videos.GetVideo(ctx, videoID)
	if err != nil {
		if errors.Is(err, models.ErrVideoNotFound) {
			h.writeError(ctx, w, http.StatusNotFound, "Video not found")
			return
		}
		h.log.ErrorContext(ctx, "Failed to get video", "videoId", videoID, "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := VideoResponse{VideoAsset: *video}
	ttl := h.cfg.API.SignedURLTTL

	// Before the HLS job finishes, playback falls back to the raw upload.
	playbackKey := video.FileKey
	if video.HLSKey != nil {
		playbackKey = *video.HLSKey
	}
	if playbackKey != "" {
		url, err := h.store.SignGetURL(ctx, playbackKey, ttl)
		if err != nil {
			h.log.ErrorContext(ctx, "Failed to sign playback URL", "videoId", videoID, "error", err)
		} else {
			resp.PlaybackURL = url
		}
	}
	if video.ThumbnailKey != nil {
		url, err := h.store.SignGetURL(ctx, *video.ThumbnailKey, ttl)
		if err != nil {
			h.log.ErrorContext(ctx, "Failed to sign thumbnail URL", "videoId", videoID, "error", err)
		} else {
			resp.ThumbnailURL = url
		}
	}

	h.writeJSON(ctx, w, http.StatusOK, resp)
}

// DeleteVideoHandler removes a video record and cascades deletion to the raw
// file, thumbnail, and all HLS output. Only the owning teacher may delete.
func (h *Handlers) DeleteVideoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ctx, span := tracer.Start(ctx, "delete-video-handler")
	defer span.End()

	claims, ok := auth.GetClaimsFromContext(ctx)
	if !ok {
		h.writeError(ctx, w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	videoID := r.PathValue("id")
	if videoID == "" {
		h.writeError(ctx, w, http.StatusBadRequest, "video id is required")
		return
	}
	span.SetAttributes(attribute.String("video.id", videoID))

	video, err := h.videos.DeleteVideo(ctx, videoID, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrVideoNotFound) {
			h.writeError(ctx, w, http.StatusNotFound, "Video not found")
			return
		}
		h.log.ErrorContext(ctx, "Failed to delete video", "videoId", videoID, "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// Object deletions are best effort once the record is gone; stragglers
	// surface in logs and the storage lifecycle policy catches the rest.
	h.deleteObjects(ctx, video)

	h.log.InfoContext(ctx, "Video deleted", "videoId", videoID, "teacherId", claims.UserID)
	h.writeJSON(ctx, w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) deleteObjects(ctx context.Context, video *models.VideoAsset) {
	if video.FileKey != "" {
		if err := h.store.Delete(ctx, video.FileKey); err != nil {
			h.log.ErrorContext(ctx, "Failed to delete raw video", "key", video.FileKey, "error", err)
		}
	}

	thumbKey := storage.ThumbnailKey(video.ID)
	if err := h.store.Delete(ctx, thumbKey); err != nil {
		h.log.ErrorContext(ctx, "Failed to delete thumbnail", "key", thumbKey, "error", err)
	}

	hlsKeys, err := h.store.List(ctx, storage.HLSPrefix(video.ID))
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to list HLS objects", "videoId", video.ID, "error", err)
		return
	}
	for _, key := range hlsKeys {
		if err := h.store.Delete(ctx, key); err != nil {
			h.log.ErrorContext(ctx, "Failed to delete HLS object", "key", key, "error", err)
		}
	}
}

// ListClassVideosHandler lists a class's videos, newest first.
func (h *Handlers) ListClassVideosHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	classID := r.PathValue("classId")
	if classID == "" {
		h.writeError(ctx, w, http.StatusBadRequest, "class id is required")
		return
	}

	limit := DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, MaxListLimit)
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	videos, err := h.videos.ListClassVideos(ctx, classID, limit, offset)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to list class videos", "classId", classID, "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if videos == nil {
		videos = []models.VideoAsset{}
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"videos": videos})
}

// TrackViewRequest is the request payload for reporting watch progress.
type TrackViewRequest struct {
	ProgressSeconds int `json:"progressSeconds"`
	DurationSeconds int `json:"durationSeconds"`
}

// TrackViewHandler records a student's watch progress on a video.
func (h *Handlers) TrackViewHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := auth.GetClaimsFromContext(ctx)
	if !ok {
		h.writeError(ctx, w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	videoID := r.PathValue("id")
	if videoID == "" {
		h.writeError(ctx, w, http.StatusBadRequest, "video id is required")
		return
	}

	var req TrackViewRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.handleDecodeError(ctx, w, err)
		return
	}
	if req.ProgressSeconds < 0 {
		h.writeError(ctx, w, http.StatusBadRequest, "progressSeconds must not be negative")
		return
	}

	if err := h.videos.TrackView(ctx, videoID, claims.UserID, req.ProgressSeconds, req.DurationSeconds); err != nil {
		h.log.ErrorContext(ctx, "Failed to track view", "videoId", videoID, "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]string{"status": "recorded"})
}

// ListViewsHandler returns view records for a video. Only the owning teacher
// may see them.
func (h *Handlers) ListViewsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := auth.GetClaimsFromContext(ctx)
	if !ok {
		h.writeError(ctx, w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	videoID := r.PathValue("id")
	if videoID == "" {
		h.writeError(ctx, w, http.StatusBadRequest, "video id is required")
		return
	}

	video, err := h.videos.GetVideo(ctx, videoID)
	if err != nil {
		if errors.Is(err, models.ErrVideoNotFound) {
			h.writeError(ctx, w, http.StatusNotFound, "Video not found")
			return
		}
		h.log.ErrorContext(ctx, "Failed to get video", "videoId", videoID, "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if video.TeacherID != claims.UserID {
		h.writeError(ctx, w, http.StatusNotFound, "Video not found")
		return
	}

	views, err := h.videos.ListViews(ctx, videoID)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to list views", "videoId", videoID, "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if views == nil {
		views = []models.VideoView{}
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"views": views})
}
