package storage

import (
	"errors"
	"testing"

	"github.com/classtream/classtream/pkg/models"
)

func TestKeyLayout(t *testing.T) {
	if got := RawVideoKey("teacher-1", "f0e1d2c3"); got != "videos/teacher-1/f0e1d2c3.mp4" {
		t.Errorf("RawVideoKey = %q", got)
	}
	if got := HLSPrefix("vid-1"); got != "hls/vid-1/" {
		t.Errorf("HLSPrefix = %q", got)
	}
	if got := HLSManifestKey("vid-1"); got != "hls/vid-1/playlist.m3u8" {
		t.Errorf("HLSManifestKey = %q", got)
	}
	if got := ThumbnailKey("vid-1"); got != "thumbnails/vid-1.jpg" {
		t.Errorf("ThumbnailKey = %q", got)
	}
}

func TestHLSSegmentKey_ZeroPadding(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "hls/vid-1/segment_000.ts"},
		{7, "hls/vid-1/segment_007.ts"},
		{42, "hls/vid-1/segment_042.ts"},
		{1234, "hls/vid-1/segment_1234.ts"},
	}
	for _, tt := range tests {
		if got := HLSSegmentKey("vid-1", tt.n); got != tt.want {
			t.Errorf("HLSSegmentKey(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestContentTypeForFile(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"playlist.m3u8", "application/vnd.apple.mpegurl"},
		{"segment_000.ts", "video/mp2t"},
		{"thumb.jpg", "image/jpeg"},
		{"thumb.JPEG", "image/jpeg"},
		{"raw.mp4", "video/mp4"},
		{"notes.txt", "application/octet-stream"},
		{"noext", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := ContentTypeForFile(tt.path); got != tt.want {
			t.Errorf("ContentTypeForFile(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestValidateRawVideoKey(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		teacherID string
		wantErr   bool
	}{
		{"valid", "videos/teacher-1/abc.mp4", "teacher-1", false},
		{"wrong teacher", "videos/teacher-2/abc.mp4", "teacher-1", true},
		{"missing prefix", "hls/teacher-1/abc.mp4", "teacher-1", true},
		{"path traversal", "videos/teacher-1/../teacher-2/abc.mp4", "teacher-1", true},
		{"encoded traversal", "videos/teacher-1/%2e%2e/abc.mp4", "teacher-1", true},
		{"bad encoding", "videos/teacher-1/%zz.mp4", "teacher-1", true},
		{"wrong extension", "videos/teacher-1/abc.mov", "teacher-1", true},
		{"no extension", "videos/teacher-1/abc", "teacher-1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRawVideoKey(tt.key, tt.teacherID)
			if tt.wantErr {
				if !errors.Is(err, models.ErrInvalidKeyFormat) {
					t.Errorf("ValidateRawVideoKey(%q) error = %v, want ErrInvalidKeyFormat", tt.key, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateRawVideoKey(%q) unexpected error: %v", tt.key, err)
			}
		})
	}
}
