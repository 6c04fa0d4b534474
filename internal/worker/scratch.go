package worker

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/classtream/classtream/internal/metrics"
)

// Scratch manages the worker's local working directory. Every job gets its
// own subdirectory; a periodic sweep reclaims whatever crashed jobs left
// behind.
type Scratch struct {
	root   string
	maxAge time.Duration
	log    *slog.Logger
}

// NewScratch creates a Scratch rooted at dir.
func NewScratch(dir string, maxAge time.Duration, log *slog.Logger) *Scratch {
	return &Scratch{root: dir, maxAge: maxAge, log: log}
}

// Root returns the scratch root directory.
func (s *Scratch) Root() string {
	return s.root
}

// JobDir creates and returns a working directory for one job stage.
func (s *Scratch) JobDir(videoID, stage string) (string, error) {
	dir := filepath.Join(s.root, stage, videoID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return dir, nil
}

// Remove deletes a job directory and its contents.
func (s *Scratch) Remove(path string) {
	if err := os.RemoveAll(path); err != nil {
		s.log.Warn("Failed to remove scratch directory", "path", path, "error", err)
	}
}

// CleanupSweep removes scratch entries older than the configured age and
// returns how many were reclaimed. Entries are judged by modification time;
// a directory touched by an active job survives the sweep. Sweeping an
// already-clean tree is a no-op returning zero.
func (s *Scratch) CleanupSweep(now time.Time) (int, error) {
	cutoff := now.Add(-s.maxAge)
	reclaimed := 0

	stages, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read scratch root: %w", err)
	}

	for _, stage := range stages {
		stagePath := filepath.Join(s.root, stage.Name())

		// Loose files at the root never belong to an active job; reclaim
		// them on the same age rule as job directories.
		if !stage.IsDir() {
			if s.reclaimIfStale(stagePath, stage, cutoff) {
				reclaimed++
			}
			continue
		}

		entries, err := os.ReadDir(stagePath)
		if err != nil {
			s.log.Warn("Failed to read scratch stage", "path", stagePath, "error", err)
			continue
		}

		for _, entry := range entries {
			if s.reclaimIfStale(filepath.Join(stagePath, entry.Name()), entry, cutoff) {
				reclaimed++
			}
		}
	}

	metrics.ScratchEntriesReclaimed.Add(float64(reclaimed))
	return reclaimed, nil
}

func (s *Scratch) reclaimIfStale(path string, entry os.DirEntry, cutoff time.Time) bool {
	info, err := entry.Info()
	if err != nil {
		return false
	}
	if info.ModTime().After(cutoff) {
		return false
	}
	if err := os.RemoveAll(path); err != nil {
		s.log.Warn("Failed to reclaim scratch entry", "path", path, "error", err)
		return false
	}
	return true
}
