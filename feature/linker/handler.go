// Package linker implements the link-suggestion handler. For an approved note
// it scans the vault for notes sharing frontmatter tags and records the best
// matches as suggested links.
package linker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/vaultd/dispatch"
	"github.com/c360studio/vaultd/feature"
	"github.com/c360studio/vaultd/note"
	"github.com/c360studio/vaultd/watch"
)

// Config configures the linker handler.
type Config struct {
	// VaultRoot is the vault directory scanned for related notes.
	VaultRoot string

	// IncludeGlobs lists doublestar patterns for candidate notes.
	IncludeGlobs []string

	// MaxSuggestions caps how many links are recorded.
	MaxSuggestions int

	// Cooldown is the minimum time between processing attempts per note.
	Cooldown time.Duration
}

// Handler suggests links between related notes.
type Handler struct {
	repo      note.Repository
	cooldowns *dispatch.CooldownStore
	config    Config
	logger    *slog.Logger
}

// New creates the linker handler.
func New(repo note.Repository, cooldowns *dispatch.CooldownStore, config Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxSuggestions <= 0 {
		config.MaxSuggestions = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 5 * time.Minute
	}
	if len(config.IncludeGlobs) == 0 {
		config.IncludeGlobs = []string{"**/*.md"}
	}
	return &Handler{
		repo:      repo,
		cooldowns: cooldowns,
		config:    config,
		logger:    logger,
	}
}

// Name implements feature.Handler.
func (h *Handler) Name() string { return "linker" }

// CanHandle claims approved draft notes that opted into link suggestions.
func (h *Handler) CanHandle(ctx context.Context, event watch.Event) bool {
	n, err := h.repo.Load(event.Path)
	if err != nil {
		return false
	}

	if !n.GetBool(note.FieldSuggestLinks) {
		return false
	}
	if n.Status() != note.StatusDraft || !n.ReadyForProcessing() || n.Processed() {
		return false
	}

	return h.cooldowns.Elapsed(event.Path, h.config.Cooldown)
}

// Handle scans the vault and records suggested links on the note.
func (h *Handler) Handle(ctx context.Context, event watch.Event) feature.Result {
	h.cooldowns.RecordAttempt(event.Path)

	n, err := h.repo.Load(event.Path)
	if err != nil {
		return feature.Fail(fmt.Errorf("reload note: %w", err))
	}
	if n.Status() != note.StatusDraft || !n.ReadyForProcessing() || n.Processed() {
		return feature.Skip("note no longer eligible")
	}

	tags := n.Tags()
	if len(tags) == 0 {
		return feature.Skip("note has no tags to match on")
	}

	n.SetStatus(note.StatusProcessing)
	n.SetProcessingStartedAt(time.Now())
	if err := h.repo.Save(event.Path, n); err != nil {
		return feature.Fail(fmt.Errorf("mark processing: %w", err))
	}

	links, err := h.findRelated(ctx, event.Path, tags)
	if err != nil {
		return h.rollback(event.Path, n, err)
	}

	n.SetStatus(note.StatusProcessed)
	n.SetProcessed(true)
	n.SetProcessingCompletedAt(time.Now())
	n.Set(note.FieldSuggestedLinks, links)

	if err := h.repo.Save(event.Path, n); err != nil {
		return h.rollback(event.Path, n, fmt.Errorf("save result: %w", err))
	}

	return feature.OK(fmt.Sprintf("suggested %d links", len(links)))
}

// candidate is a scored related note.
type candidate struct {
	path    string
	overlap int
}

// findRelated ranks vault notes by tag overlap with the given tags.
func (h *Handler) findRelated(ctx context.Context, selfPath string, tags []string) ([]string, error) {
	tagSet := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tagSet[tag] = true
	}

	selfAbs, err := filepath.Abs(selfPath)
	if err != nil {
		selfAbs = selfPath
	}

	var candidates []candidate
	fsys := os.DirFS(h.config.VaultRoot)

	for _, pattern := range h.config.IncludeGlobs {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}

		for _, rel := range matches {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			abs := filepath.Join(h.config.VaultRoot, filepath.FromSlash(rel))
			if abs == selfAbs {
				continue
			}

			other, err := h.repo.Load(abs)
			if err != nil {
				continue // unreadable or malformed notes are not candidates
			}

			overlap := 0
			for _, tag := range other.Tags() {
				if tagSet[tag] {
					overlap++
				}
			}
			if overlap > 0 {
				candidates = append(candidates, candidate{path: rel, overlap: overlap})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		return candidates[i].path < candidates[j].path
	})

	if len(candidates) > h.config.MaxSuggestions {
		candidates = candidates[:h.config.MaxSuggestions]
	}

	links := make([]string, len(candidates))
	for i, c := range candidates {
		links[i] = c.path
	}
	return links, nil
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
