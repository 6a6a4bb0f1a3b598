// Package transcript implements the transcript quote-extraction handler: the
// daemon's representative stateful capability. It drives each note through
// draft → processing → processed, rolling back to draft on failure.
package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/vaultd/dispatch"
	"github.com/c360studio/vaultd/extract"
	"github.com/c360studio/vaultd/feature"
	"github.com/c360studio/vaultd/note"
	"github.com/c360studio/vaultd/watch"
	"github.com/c360studio/vaultd/webfetch"
)

// Fetcher retrieves a transcript from its source URL.
type Fetcher interface {
	FetchTranscript(ctx context.Context, url string) (*webfetch.Transcript, error)
}

// Extractor selects quotes from transcript text.
type Extractor interface {
	ExtractQuotes(ctx context.Context, transcript string) ([]extract.Quote, error)
}

// Config configures the transcript handler.
type Config struct {
	// Cooldown is the minimum time between processing attempts per note.
	Cooldown time.Duration

	// Timeout bounds the external collaborator calls per invocation.
	Timeout time.Duration
}

// Handler processes transcript notes.
type Handler struct {
	repo      note.Repository
	cooldowns *dispatch.CooldownStore
	fetcher   Fetcher
	extractor Extractor
	config    Config
	logger    *slog.Logger
}

// New creates the transcript handler.
func New(repo note.Repository, cooldowns *dispatch.CooldownStore, fetcher Fetcher, extractor Extractor, config Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 5 * time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	return &Handler{
		repo:      repo,
		cooldowns: cooldowns,
		fetcher:   fetcher,
		extractor: extractor,
		config:    config,
		logger:    logger,
	}
}

// Name implements feature.Handler.
func (h *Handler) Name() string { return "transcript" }

// CanHandle claims draft transcript notes the user has approved for
// processing and whose cooldown window has passed. Read-only: the approval
// flag is user-owned and is never written here or anywhere in the daemon.
func (h *Handler) CanHandle(ctx context.Context, event watch.Event) bool {
	n, err := h.repo.Load(event.Path)
	if err != nil {
		h.logger.Debug("Cannot load note, declining", "path", event.Path, "error", err)
		return false
	}

	if n.GetString(note.FieldTranscriptURL) == "" {
		return false
	}
	if n.Status() != note.StatusDraft {
		return false
	}
	if !n.ReadyForProcessing() {
		return false
	}
	if n.Processed() {
		return false
	}
	if !h.cooldowns.Elapsed(event.Path, h.config.Cooldown) {
		h.logger.Debug("Cooldown active, declining", "path", event.Path)
		return false
	}

	return true
}

// Handle runs the state machine for one approved transcript note.
func (h *Handler) Handle(ctx context.Context, event watch.Event) feature.Result {
	// Record the attempt before any external call so a slow or hung
	// collaborator cannot leave the cooldown window open to re-entry.
	h.cooldowns.RecordAttempt(event.Path)

	// Re-read from disk: the file may have changed between CanHandle and here.
	n, err := h.repo.Load(event.Path)
	if err != nil {
		return feature.Fail(fmt.Errorf("reload note: %w", err))
	}
	if n.Status() != note.StatusDraft || !n.ReadyForProcessing() || n.Processed() {
		return feature.Skip("note no longer eligible")
	}

	url := n.GetString(note.FieldTranscriptURL)
	if url == "" {
		return feature.Skip("transcript_url removed")
	}

	n.SetStatus(note.StatusProcessing)
	n.SetProcessingStartedAt(time.Now())
	if err := h.repo.Save(event.Path, n); err != nil {
		return feature.Fail(fmt.Errorf("mark processing: %w", err))
	}

	quotes, err := h.process(ctx, url)
	if err != nil {
		return h.rollback(event.Path, n, err)
	}

	n.SetStatus(note.StatusProcessed)
	n.SetProcessed(true)
	n.SetProcessingCompletedAt(time.Now())
	n.Set(note.FieldQuoteCount, len(quotes))
	n.Body = appendQuotes(n.Body, quotes)

	if err := h.repo.Save(event.Path, n); err != nil {
		return h.rollback(event.Path, n, fmt.Errorf("save result: %w", err))
	}

	return feature.OK(fmt.Sprintf("extracted %d quotes", len(quotes)))
}

// process runs the collaborator calls under the configured timeout.
func (h *Handler) process(ctx context.Context, url string) ([]extract.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	transcript, err := h.fetcher.FetchTranscript(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch transcript: %w", err)
	}

	quotes, err := h.extractor.ExtractQuotes(ctx, transcript.Markdown)
	if err != nil {
		return nil, fmt.Errorf("extract quotes: %w", err)
	}

	return quotes, nil
}

// rollback returns the note to draft so the next approved save can retry.
// The user-owned approval flag stays untouched.
func (h *Handler) rollback(path string, n *note.Note, cause error) feature.Result {
	n.SetStatus(note.StatusDraft)
	n.SetProcessed(false)
	if err := h.repo.Save(path, n); err != nil {
		h.logger.Error("Rollback save failed", "path", path, "error", err)
	}
	return feature.Fail(cause)
}

// appendQuotes renders extracted quotes into the note body.
func appendQuotes(body string, quotes []extract.Quote) string {
	if len(quotes) == 0 {
		return body
	}

	var buf strings.Builder
	buf.WriteString(strings.TrimRight(body, "\n"))
	buf.WriteString("\n\n## Extracted Quotes\n")

	for _, q := range quotes {
		buf.WriteString("\n> ")
		buf.WriteString(strings.ReplaceAll(q.Text, "\n", "\n> "))
		buf.WriteString("\n")
		if q.Speaker != "" {
			buf.WriteString("> — ")
			buf.WriteString(q.Speaker)
			buf.WriteString("\n")
		}
		if q.Context != "" {
			buf.WriteString(">\n> *")
			buf.WriteString(q.Context)
			buf.WriteString("*\n")
		}
	}

	return buf.String()
}
