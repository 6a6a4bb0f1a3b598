// Package screenshot implements the screenshot-import handler. It archives a
// note's source image into the vault attachments directory and records the
// archived artifact on the note. Image analysis itself is an external
// concern; this handler owns the import and bookkeeping.
package screenshot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/vaultd/dispatch"
	"github.com/c360studio/vaultd/feature"
	"github.com/c360studio/vaultd/note"
	"github.com/c360studio/vaultd/watch"
)

// Config configures the screenshot handler.
type Config struct {
	// AttachmentsDir is the absolute directory imported images are copied into.
	AttachmentsDir string

	// VaultRoot is the vault root, used to record vault-relative artifact paths.
	VaultRoot string

	// Cooldown is the minimum time between processing attempts per note.
	Cooldown time.Duration
}

// Handler imports screenshot notes.
type Handler struct {
	repo      note.Repository
	cooldowns *dispatch.CooldownStore
	config    Config
	logger    *slog.Logger
}

// New creates the screenshot handler.
func New(repo note.Repository, cooldowns *dispatch.CooldownStore, config Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 5 * time.Minute
	}
	return &Handler{
		repo:      repo,
		cooldowns: cooldowns,
		config:    config,
		logger:    logger,
	}
}

// Name implements feature.Handler.
func (h *Handler) Name() string { return "screenshot" }

// CanHandle claims approved draft screenshot notes with a source image.
func (h *Handler) CanHandle(ctx context.Context, event watch.Event) bool {
	n, err := h.repo.Load(event.Path)
	if err != nil {
		return false
	}

	if n.Type() != "screenshot" || n.GetString(note.FieldSourceImage) == "" {
		return false
	}
	if n.Status() != note.StatusDraft || !n.ReadyForProcessing() || n.Processed() {
		return false
	}

	return h.cooldowns.Elapsed(event.Path, h.config.Cooldown)
}

// Handle archives the source image and marks the note processed.
func (h *Handler) Handle(ctx context.Context, event watch.Event) feature.Result {
	h.cooldowns.RecordAttempt(event.Path)

	n, err := h.repo.Load(event.Path)
	if err != nil {
		return feature.Fail(fmt.Errorf("reload note: %w", err))
	}
	if n.Status() != note.StatusDraft || !n.ReadyForProcessing() || n.Processed() {
		return feature.Skip("note no longer eligible")
	}

	source := n.GetString(note.FieldSourceImage)
	if source == "" {
		return feature.Skip("source_image removed")
	}
	if !filepath.IsAbs(source) {
		source = filepath.Join(h.config.VaultRoot, source)
	}

	n.SetStatus(note.StatusProcessing)
	n.SetProcessingStartedAt(time.Now())
	if err := h.repo.Save(event.Path, n); err != nil {
		return feature.Fail(fmt.Errorf("mark processing: %w", err))
	}

	artifact, err := h.archiveImage(source)
	if err != nil {
		return h.rollback(event.Path, n, err)
	}

	n.SetStatus(note.StatusProcessed)
	n.SetProcessed(true)
	n.SetProcessingCompletedAt(time.Now())
	n.Set(note.FieldArchivedArtifact, artifact)

	if err := h.repo.Save(event.Path, n); err != nil {
		return h.rollback(event.Path, n, fmt.Errorf("save result: %w", err))
	}

	return feature.OK("archived " + artifact)
}

// archiveImage copies the source image into the attachments directory under a
// collision-free name and returns the vault-relative artifact path.
func (h *Handler) archiveImage(source string) (string, error) {
	src, err := os.Open(source)
	if err != nil {
		return "", fmt.Errorf("open source image: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(h.config.AttachmentsDir, 0755); err != nil {
		return "", fmt.Errorf("create attachments dir: %w", err)
	}

	name := uuid.NewString() + filepath.Ext(source)
	destPath := filepath.Join(h.config.AttachmentsDir, name)

	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("copy image: %w", err)
	}

	rel, err := filepath.Rel(h.config.VaultRoot, destPath)
	if err != nil {
		return destPath, nil
	}
	return filepath.ToSlash(rel), nil
}

// rollback returns the note to draft for a later retry.
func (h *Handler) rollback(path string, n *note.Note, cause error) feature.Result {
	n.SetStatus(note.StatusDraft)
	n.SetProcessed(false)
	if err := h.repo.Save(path, n); err != nil {
		h.logger.Error("Rollback save failed", "path", path, "error", err)
	}
	return feature.Fail(cause)
}
