package storage

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/classtream/classtream/pkg/models"
)

// Object key namespace prefixes.
const (
	RawVideoPrefix  = "videos/"
	HLSKeyPrefix    = "hls/"
	ThumbnailPrefix = "thumbnails/"
)

// RawVideoKey returns the object key for an uploaded raw video.
func RawVideoKey(teacherID, fileID string) string {
	return fmt.Sprintf("videos/%s/%s.mp4", teacherID, fileID)
}

// HLSPrefix returns the key prefix holding all HLS files for a video.
func HLSPrefix(videoID string) string {
	return fmt.Sprintf("hls/%s/", videoID)
}

// HLSManifestKey returns the key of the HLS playlist for a video.
func HLSManifestKey(videoID string) string {
	return fmt.Sprintf("hls/%s/playlist.m3u8", videoID)
}

// HLSSegmentKey returns the key of one HLS segment, zero-padded to 3 digits.
func HLSSegmentKey(videoID string, n int) string {
	return fmt.Sprintf("hls/%s/segment_%03d.ts", videoID, n)
}

// ThumbnailKey returns the object key for a video thumbnail.
func ThumbnailKey(videoID string) string {
	return fmt.Sprintf("thumbnails/%s.jpg", videoID)
}

// ContentTypeForFile maps a derived file to its upload content type.
func ContentTypeForFile(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

// ValidateRawVideoKey checks that a client-supplied key is a well-formed raw
// video key owned by the given teacher.
func ValidateRawVideoKey(key, teacherID string) error {
	decoded, err := url.PathUnescape(key)
	if err != nil {
		return fmt.Errorf("%w: invalid URL encoding", models.ErrInvalidKeyFormat)
	}

	if strings.Contains(decoded, "..") || strings.Contains(key, "..") {
		return fmt.Errorf("%w: path traversal not allowed", models.ErrInvalidKeyFormat)
	}

	expectedPrefix := fmt.Sprintf("videos/%s/", teacherID)
	if !strings.HasPrefix(key, expectedPrefix) {
		return fmt.Errorf("%w: key must start with %s", models.ErrInvalidKeyFormat, expectedPrefix)
	}

	if !strings.HasSuffix(key, ".mp4") {
		return fmt.Errorf("%w: invalid extension in key", models.ErrInvalidKeyFormat)
	}

	return nil
}
