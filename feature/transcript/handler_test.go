package transcript

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/vaultd/dispatch"
	"github.com/c360studio/vaultd/extract"
	"github.com/c360studio/vaultd/note"
	"github.com/c360studio/vaultd/watch"
	"github.com/c360studio/vaultd/webfetch"
)

type fakeFetcher struct {
	transcript *webfetch.Transcript
	err        error
	calls      int
}

func (f *fakeFetcher) FetchTranscript(ctx context.Context, url string) (*webfetch.Transcript, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.transcript, nil
}

type fakeExtractor struct {
	quotes []extract.Quote
	err    error
}

func (f *fakeExtractor) ExtractQuotes(ctx context.Context, transcript string) ([]extract.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.quotes, nil
}

func writeNote(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const approvedNote = `---
status: draft
ready_for_processing: true
transcript_url: https://example.com/talk
---

# Talk notes
`

func newHandler(fetcher Fetcher, extractor Extractor) (*Handler, *dispatch.CooldownStore) {
	cooldowns := dispatch.NewCooldownStore()
	h := New(note.NewFileRepository(), cooldowns, fetcher, extractor, Config{
		Cooldown: time.Minute,
		Timeout:  5 * time.Second,
	}, nil)
	return h, cooldowns
}

func event(path string) watch.Event {
	return watch.Event{Path: path, Kind: watch.KindModified, ObservedAt: time.Now()}
}

func TestCanHandle(t *testing.T) {
	dir := t.TempDir()
	h, _ := newHandler(&fakeFetcher{}, &fakeExtractor{})

	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"approved draft", approvedNote, true},
		{
			"not approved",
			"---\nstatus: draft\ntranscript_url: https://example.com/t\n---\n",
			false,
		},
		{
			"no transcript url",
			"---\nstatus: draft\nready_for_processing: true\n---\n",
			false,
		},
		{
			"already processed",
			"---\nstatus: processed\nready_for_processing: true\nprocessed: true\ntranscript_url: https://example.com/t\n---\n",
			false,
		},
		{
			"mid processing",
			"---\nstatus: processing\nready_for_processing: true\ntranscript_url: https://example.com/t\n---\n",
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeNote(t, dir, tt.name+".md", tt.content)
			assert.Equal(t, tt.want, h.CanHandle(context.Background(), event(path)))
		})
	}
}

func TestCanHandleDeclinesMissingFile(t *testing.T) {
	h, _ := newHandler(&fakeFetcher{}, &fakeExtractor{})
	assert.False(t, h.CanHandle(context.Background(), event("/nonexistent/note.md")))
}

func TestCanHandleRespectsCooldown(t *testing.T) {
	dir := t.TempDir()
	h, cooldowns := newHandler(&fakeFetcher{}, &fakeExtractor{})
	path := writeNote(t, dir, "note.md", approvedNote)

	assert.True(t, h.CanHandle(context.Background(), event(path)))
	cooldowns.RecordAttempt(path)
	assert.False(t, h.CanHandle(context.Background(), event(path)))
}

func TestHandleSuccess(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{transcript: &webfetch.Transcript{
		Title:    "A Talk",
		Markdown: "long transcript text",
	}}
	extractor := &fakeExtractor{quotes: []extract.Quote{
		{Text: "Simplicity wins.", Speaker: "Guest"},
		{Text: "Stability matters more than features.", Context: "On longevity"},
	}}
	h, cooldowns := newHandler(fetcher, extractor)

	path := writeNote(t, dir, "note.md", approvedNote)
	result := h.Handle(context.Background(), event(path))
	require.True(t, result.Success, result.Message)
	assert.False(t, result.Skipped)

	n, err := note.NewFileRepository().Load(path)
	require.NoError(t, err)
	assert.Equal(t, note.StatusProcessed, n.Status())
	assert.True(t, n.Processed())
	assert.True(t, n.ReadyForProcessing(), "user-owned flag untouched")
	assert.Equal(t, 2, n.Frontmatter[note.FieldQuoteCount])
	_, ok := n.ProcessingCompletedAt()
	assert.True(t, ok)

	assert.Contains(t, n.Body, "## Extracted Quotes")
	assert.Contains(t, n.Body, "> Simplicity wins.")
	assert.Contains(t, n.Body, "> — Guest")
	assert.Contains(t, n.Body, "*On longevity*")

	assert.False(t, cooldowns.Elapsed(path, time.Minute), "attempt is recorded")
}

func TestHandleFetchFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	h, _ := newHandler(&fakeFetcher{err: errors.New("connection refused")}, &fakeExtractor{})

	path := writeNote(t, dir, "note.md", approvedNote)
	result := h.Handle(context.Background(), event(path))
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "fetch transcript")

	n, err := note.NewFileRepository().Load(path)
	require.NoError(t, err)
	assert.Equal(t, note.StatusDraft, n.Status(), "rolled back to draft")
	assert.False(t, n.Processed())
	assert.True(t, n.ReadyForProcessing(), "approval flag survives rollback")
	assert.NotContains(t, n.Body, "Extracted Quotes")
}

func TestHandleExtractionFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{transcript: &webfetch.Transcript{Markdown: "text"}}
	h, _ := newHandler(fetcher, &fakeExtractor{err: errors.New("model unavailable")})

	path := writeNote(t, dir, "note.md", approvedNote)
	result := h.Handle(context.Background(), event(path))
	require.False(t, result.Success)

	n, err := note.NewFileRepository().Load(path)
	require.NoError(t, err)
	assert.Equal(t, note.StatusDraft, n.Status())
}

func TestHandleSkipsIfNoLongerEligible(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{}
	h, _ := newHandler(fetcher, &fakeExtractor{})

	// Approval was withdrawn between CanHandle and Handle.
	path := writeNote(t, dir, "note.md",
		"---\nstatus: draft\nready_for_processing: false\ntranscript_url: https://example.com/t\n---\n")

	result := h.Handle(context.Background(), event(path))
	assert.True(t, result.Success)
	assert.True(t, result.Skipped)
	assert.Equal(t, 0, fetcher.calls, "no external call for ineligible notes")
}

func TestAppendQuotesEmpty(t *testing.T) {
	assert.Equal(t, "body", appendQuotes("body", nil))
}
