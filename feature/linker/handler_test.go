package linker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/vaultd/dispatch"
	"github.com/c360studio/vaultd/note"
	"github.com/c360studio/vaultd/watch"
)

func setup(t *testing.T, maxSuggestions int) (*Handler, string) {
	t.Helper()
	vault := t.TempDir()
	h := New(note.NewFileRepository(), dispatch.NewCooldownStore(), Config{
		VaultRoot:      vault,
		MaxSuggestions: maxSuggestions,
		Cooldown:       time.Minute,
	}, nil)
	return h, vault
}

func writeNote(t *testing.T, vault, rel, content string) string {
	t.Helper()
	path := filepath.Join(vault, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func event(path string) watch.Event {
	return watch.Event{Path: path, Kind: watch.KindModified, ObservedAt: time.Now()}
}

func taggedNote(tags ...string) string {
	content := "---\ntags:\n"
	for _, tag := range tags {
		content += "  - " + tag + "\n"
	}
	return content + "---\ncontent\n"
}

func TestCanHandle(t *testing.T) {
	h, vault := setup(t, 5)

	optedIn := writeNote(t, vault, "a.md",
		"---\nsuggest_links: true\nstatus: draft\nready_for_processing: true\ntags: [go]\n---\n")
	assert.True(t, h.CanHandle(context.Background(), event(optedIn)))

	notOptedIn := writeNote(t, vault, "b.md",
		"---\nstatus: draft\nready_for_processing: true\ntags: [go]\n---\n")
	assert.False(t, h.CanHandle(context.Background(), event(notOptedIn)))
}

func TestHandleSuggestsByTagOverlap(t *testing.T) {
	h, vault := setup(t, 5)

	writeNote(t, vault, "two-shared.md", taggedNote("go", "testing", "unrelated"))
	writeNote(t, vault, "one-shared.md", taggedNote("go"))
	writeNote(t, vault, "none-shared.md", taggedNote("cooking"))
	writeNote(t, vault, "sub/also-two.md", taggedNote("go", "testing"))

	self := writeNote(t, vault, "self.md",
		"---\nsuggest_links: true\nstatus: draft\nready_for_processing: true\ntags:\n  - go\n  - testing\n---\n")

	result := h.Handle(context.Background(), event(self))
	require.True(t, result.Success, result.Message)

	n, err := note.NewFileRepository().Load(self)
	require.NoError(t, err)
	assert.Equal(t, note.StatusProcessed, n.Status())

	links := suggestedLinks(t, n)
	require.Len(t, links, 3, "self and unrelated notes are excluded")
	// Two-tag overlaps first, alphabetical within equal overlap.
	assert.Equal(t, "sub/also-two.md", links[0])
	assert.Equal(t, "two-shared.md", links[1])
	assert.Equal(t, "one-shared.md", links[2])
}

func TestHandleCapsSuggestions(t *testing.T) {
	h, vault := setup(t, 2)

	writeNote(t, vault, "m1.md", taggedNote("go"))
	writeNote(t, vault, "m2.md", taggedNote("go"))
	writeNote(t, vault, "m3.md", taggedNote("go"))

	self := writeNote(t, vault, "self.md",
		"---\nsuggest_links: true\nstatus: draft\nready_for_processing: true\ntags: [go]\n---\n")

	result := h.Handle(context.Background(), event(self))
	require.True(t, result.Success)

	n, err := note.NewFileRepository().Load(self)
	require.NoError(t, err)
	assert.Len(t, suggestedLinks(t, n), 2)
}

func TestHandleNoTagsSkips(t *testing.T) {
	h, vault := setup(t, 5)

	self := writeNote(t, vault, "self.md",
		"---\nsuggest_links: true\nstatus: draft\nready_for_processing: true\n---\n")

	result := h.Handle(context.Background(), event(self))
	assert.True(t, result.Success)
	assert.True(t, result.Skipped)

	n, err := note.NewFileRepository().Load(self)
	require.NoError(t, err)
	assert.Equal(t, note.StatusDraft, n.Status(), "skipped notes stay untouched")
}

func TestHandleNoMatchesStillProcesses(t *testing.T) {
	h, vault := setup(t, 5)

	writeNote(t, vault, "other.md", taggedNote("cooking"))
	self := writeNote(t, vault, "self.md",
		"---\nsuggest_links: true\nstatus: draft\nready_for_processing: true\ntags: [go]\n---\n")

	result := h.Handle(context.Background(), event(self))
	require.True(t, result.Success)

	n, err := note.NewFileRepository().Load(self)
	require.NoError(t, err)
	assert.Equal(t, note.StatusProcessed, n.Status())
	assert.Empty(t, suggestedLinks(t, n))
}

// suggestedLinks reads the links field back through a YAML round trip, where
// string lists come back as []any.
func suggestedLinks(t *testing.T, n *note.Note) []string {
	t.Helper()

	raw, ok := n.Frontmatter[note.FieldSuggestedLinks]
	require.True(t, ok, "suggested_links field missing")

	items, ok := raw.([]any)
	if !ok {
		// An empty slice may marshal to an empty YAML list.
		require.Empty(t, raw)
		return nil
	}

	links := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		require.True(t, ok)
		links = append(links, s)
	}
	return links
}
