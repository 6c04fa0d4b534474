package transcoder

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/classtream/classtream/pkg/models"
)

// ProbeDuration reads the container duration via ffprobe, truncated to whole
// seconds. A zero duration is not an error; thumbnail seek clamps it.
func (t *Transcoder) ProbeDuration(ctx context.Context, inputPath string) (int, error) {
	ctx, span := tracer.Start(ctx, "ffprobe-duration")
	defer span.End()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe: %v", models.ErrFFmpegFailed, err)
	}

	raw := strings.TrimSpace(string(output))
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unparseable duration %q", models.ErrFFmpegFailed, raw)
	}

	return int(seconds), nil
}

// ThumbnailSeek picks the poster frame offset: 10% into the video, at least
// one second in to skip black lead-in frames.
func ThumbnailSeek(durationSeconds int) int {
	seek := durationSeconds / 10
	if seek < 1 {
		seek = 1
	}
	return seek
}
