package transcoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/classtream/classtream/internal/metrics"
	"github.com/classtream/classtream/pkg/models"
)

const (
	// HLSSegmentDuration is the duration of each HLS segment in seconds.
	HLSSegmentDuration = 10

	// ThumbnailWidth and ThumbnailHeight fix the poster frame size.
	ThumbnailWidth  = 1280
	ThumbnailHeight = 720

	// ThumbnailQuality is the JPEG quality factor (lower is better).
	ThumbnailQuality = 2
)

var tracer = otel.Tracer("classtream-transcoder")

// Transcoder wraps ffmpeg for HLS packaging and thumbnail extraction.
type Transcoder struct {
	log *slog.Logger
}

// NewTranscoder creates a Transcoder.
func NewTranscoder(log *slog.Logger) *Transcoder {
	return &Transcoder{log: log}
}

// TranscodeToHLS packages the input video into a single-rendition HLS stream:
// one playlist.m3u8 plus numbered segments in hlsDir.
func (t *Transcoder) TranscodeToHLS(ctx context.Context, inputPath, hlsDir string) error {
	ctx, span := tracer.Start(ctx, "transcode-hls")
	defer span.End()

	start := time.Now()
	args := buildHLSArgs(inputPath, hlsDir)
	if err := t.runFFmpeg(ctx, args); err != nil {
		return fmt.Errorf("%w: %v", models.ErrTranscodeFailed, err)
	}
	metrics.TranscodeDuration.Observe(time.Since(start).Seconds())
	return nil
}

// ExtractThumbnail grabs a single frame at seek seconds into the video and
// writes it as a JPEG to outputPath.
func (t *Transcoder) ExtractThumbnail(ctx context.Context, inputPath, outputPath string, seek int) error {
	ctx, span := tracer.Start(ctx, "extract-thumbnail")
	defer span.End()

	args := buildThumbnailArgs(inputPath, outputPath, seek)
	if err := t.runFFmpeg(ctx, args); err != nil {
		return fmt.Errorf("%w: %v", models.ErrTranscodeFailed, err)
	}
	return nil
}

func buildHLSArgs(inputPath, hlsDir string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-hls_time", fmt.Sprintf("%d", HLSSegmentDuration),
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(hlsDir, "segment_%03d.ts"),
		filepath.Join(hlsDir, "playlist.m3u8"),
	}
}

func buildThumbnailArgs(inputPath, outputPath string, seek int) []string {
	return []string{
		"-y",
		"-ss", fmt.Sprintf("%d", seek),
		"-i", inputPath,
		"-vframes", "1",
		"-q:v", fmt.Sprintf("%d", ThumbnailQuality),
		"-s", fmt.Sprintf("%dx%d", ThumbnailWidth, ThumbnailHeight),
		outputPath,
	}
}

// runFFmpeg executes ffmpeg and streams its output through the logger.
func (t *Transcoder) runFFmpeg(ctx context.Context, args []string) error {
	ctx, span := tracer.Start(ctx, "ffmpeg-execute")
	defer span.End()

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		t.monitorOutput(ctx, stderrPipe)
	}()

	go func() {
		defer wg.Done()
		_, _ = io.Copy(io.Discard, stdoutPipe)
	}()

	cmdErr := cmd.Wait()
	wg.Wait()

	if cmdErr != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: context canceled", models.ErrFFmpegFailed)
		}
		return fmt.Errorf("%w: %v", models.ErrFFmpegFailed, cmdErr)
	}
	return nil
}

// monitorOutput reads and logs FFmpeg progress lines.
func (t *Transcoder) monitorOutput(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
			line := scanner.Text()
			if strings.Contains(line, "frame=") || strings.Contains(line, "time=") {
				t.log.Debug("FFmpeg progress", "output", line)
			} else if strings.Contains(line, "error") || strings.Contains(line, "Error") {
				t.log.Warn("FFmpeg warning", "output", line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		t.log.Warn("FFmpeg output scanner error", "error", err)
	}
}
