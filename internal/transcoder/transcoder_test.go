package transcoder

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestBuildHLSArgs(t *testing.T) {
	args := buildHLSArgs("/scratch/in.mp4", "/scratch/hls")

	want := []string{
		"-y",
		"-i", "/scratch/in.mp4",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-hls_time", "10",
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join("/scratch/hls", "segment_%03d.ts"),
		filepath.Join("/scratch/hls", "playlist.m3u8"),
	}

	if !reflect.DeepEqual(args, want) {
		t.Errorf("buildHLSArgs() = %v, want %v", args, want)
	}
}

func TestBuildThumbnailArgs(t *testing.T) {
	args := buildThumbnailArgs("/scratch/in.mp4", "/scratch/thumb.jpg", 12)

	want := []string{
		"-y",
		"-ss", "12",
		"-i", "/scratch/in.mp4",
		"-vframes", "1",
		"-q:v", "2",
		"-s", "1280x720",
		"/scratch/thumb.jpg",
	}

	if !reflect.DeepEqual(args, want) {
		t.Errorf("buildThumbnailArgs() = %v, want %v", args, want)
	}
}

func TestThumbnailSeek(t *testing.T) {
	tests := []struct {
		duration int
		want     int
	}{
		{120, 12},
		{30, 3},
		{10, 1},
		{3, 1},  // clamped to 1s minimum
		{0, 1},  // unknown duration still seeks past frame zero
		{19, 1}, // integer truncation
		{25, 2},
	}

	for _, tt := range tests {
		if got := ThumbnailSeek(tt.duration); got != tt.want {
			t.Errorf("ThumbnailSeek(%d) = %d, want %d", tt.duration, got, tt.want)
		}
	}
}
