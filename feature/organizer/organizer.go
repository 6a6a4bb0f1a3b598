// Package organizer implements the schedule-only directory-organization
// handler. It never claims file events; a timer drives RunScheduled, which
// moves old processed notes into a dated archive hierarchy.
package organizer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c360studio/vaultd/feature"
	"github.com/c360studio/vaultd/note"
	"github.com/c360studio/vaultd/watch"
)

// Config configures the organizer.
type Config struct {
	// VaultRoot is the vault directory scanned for archivable notes.
	VaultRoot string

	// ArchiveDir is the absolute directory notes are moved into, laid out as
	// ArchiveDir/YYYY/MM/.
	ArchiveDir string

	// ArchiveAfter is how old a processed note must be before it moves.
	ArchiveAfter time.Duration
}

// Handler archives old processed notes on a schedule.
type Handler struct {
	repo   note.Repository
	config Config
	logger *slog.Logger
}

// New creates the organizer.
func New(repo note.Repository, config Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ArchiveAfter <= 0 {
		config.ArchiveAfter = 30 * 24 * time.Hour
	}
	return &Handler{
		repo:   repo,
		config: config,
		logger: logger,
	}
}

// Name implements feature.Handler and feature.Scheduled.
func (h *Handler) Name() string { return "organizer" }

// CanHandle always declines: the organizer is driven by the scheduler, not
// by file events.
func (h *Handler) CanHandle(ctx context.Context, event watch.Event) bool {
	return false
}

// Handle is unreachable through the router since CanHandle always declines.
func (h *Handler) Handle(ctx context.Context, event watch.Event) feature.Result {
	return feature.Skip("organizer runs on a schedule")
}

// RunScheduled sweeps the vault once, archiving processed notes older than
// the configured age. A failure on one note logs and continues.
func (h *Handler) RunScheduled(ctx context.Context) feature.Result {
	cutoff := time.Now().Add(-h.config.ArchiveAfter)
	moved := 0

	err := filepath.Walk(h.config.VaultRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if info.IsDir() {
			base := filepath.Base(path)
			if path != h.config.VaultRoot && strings.HasPrefix(base, ".") {
				return filepath.SkipDir
			}
			// Never re-archive what is already archived.
			if path == h.config.ArchiveDir {
				return filepath.SkipDir
			}
			return nil
		}

		if filepath.Ext(path) != ".md" {
			return nil
		}

		if h.archiveIfOld(path, cutoff) {
			moved++
		}
		return nil
	})
	if err != nil {
		return feature.Fail(fmt.Errorf("archive sweep: %w", err))
	}

	return feature.OK(fmt.Sprintf("archived %d notes", moved))
}

// archiveIfOld moves one note into the archive when it qualifies.
func (h *Handler) archiveIfOld(path string, cutoff time.Time) bool {
	n, err := h.repo.Load(path)
	if err != nil {
		return false
	}

	if !n.Processed() {
		return false
	}
	completedAt, ok := n.ProcessingCompletedAt()
	if !ok || completedAt.After(cutoff) {
		return false
	}

	destDir := filepath.Join(h.config.ArchiveDir,
		completedAt.Format("2006"), completedAt.Format("01"))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		h.logger.Warn("Cannot create archive directory", "dir", destDir, "error", err)
		return false
	}

	dest := filepath.Join(destDir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		h.logger.Warn("Archive destination exists, skipping", "path", path, "dest", dest)
		return false
	}

	if err := os.Rename(path, dest); err != nil {
		h.logger.Warn("Archive move failed", "path", path, "error", err)
		return false
	}

	h.logger.Info("Archived note", "path", path, "dest", dest)
	return true
}
