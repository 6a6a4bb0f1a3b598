package organizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/vaultd/note"
	"github.com/c360studio/vaultd/watch"
)

func setup(t *testing.T) (*Handler, string) {
	t.Helper()
	vault := t.TempDir()
	h := New(note.NewFileRepository(), Config{
		VaultRoot:    vault,
		ArchiveDir:   filepath.Join(vault, "Archive"),
		ArchiveAfter: 30 * 24 * time.Hour,
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

func processedNote(completedAt time.Time) string {
	return fmt.Sprintf(
		"---\nstatus: processed\nprocessed: true\nprocessing_completed_at: %q\n---\ncontent\n",
		completedAt.UTC().Format(time.RFC3339))
}

func TestNeverClaimsEvents(t *testing.T) {
	h, _ := setup(t)

	assert.False(t, h.CanHandle(context.Background(), watch.Event{Path: "/any/note.md"}))
	result := h.Handle(context.Background(), watch.Event{Path: "/any/note.md"})
	assert.True(t, result.Skipped)
}

func TestRunScheduledArchivesOldNotes(t *testing.T) {
	h, vault := setup(t)

	old := time.Now().Add(-60 * 24 * time.Hour)
	writeNote(t, vault, "old.md", processedNote(old))
	writeNote(t, vault, "recent.md", processedNote(time.Now().Add(-time.Hour)))
	writeNote(t, vault, "unprocessed.md", "---\nstatus: draft\n---\n")

	result := h.RunScheduled(context.Background())
	require.True(t, result.Success, result.Message)
	assert.Equal(t, "archived 1 notes", result.Message)

	// The old note moved into Archive/YYYY/MM/.
	dest := filepath.Join(vault, "Archive", old.UTC().Format("2006"), old.UTC().Format("01"), "old.md")
	assert.FileExists(t, dest)
	assert.NoFileExists(t, filepath.Join(vault, "old.md"))

	assert.FileExists(t, filepath.Join(vault, "recent.md"))
	assert.FileExists(t, filepath.Join(vault, "unprocessed.md"))
}

func TestRunScheduledSkipsArchiveDir(t *testing.T) {
	h, vault := setup(t)

	old := time.Now().Add(-60 * 24 * time.Hour)
	archived := writeNote(t, vault, filepath.Join("Archive", "2020", "01", "done.md"), processedNote(old))

	result := h.RunScheduled(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, "archived 0 notes", result.Message)
	assert.FileExists(t, archived, "already-archived notes stay put")
}

func TestRunScheduledSkipsExistingDestination(t *testing.T) {
	h, vault := setup(t)

	old := time.Now().Add(-60 * 24 * time.Hour)
	writeNote(t, vault, "dup.md", processedNote(old))
	dest := filepath.Join("Archive", old.UTC().Format("2006"), old.UTC().Format("01"), "dup.md")
	writeNote(t, vault, dest, "existing archived copy")

	result := h.RunScheduled(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, "archived 0 notes", result.Message)
	assert.FileExists(t, filepath.Join(vault, "dup.md"), "source left in place on collision")

	data, err := os.ReadFile(filepath.Join(vault, dest))
	require.NoError(t, err)
	assert.Equal(t, "existing archived copy", string(data))
}

func TestRunScheduledIgnoresMissingCompletedAt(t *testing.T) {
	h, vault := setup(t)

	writeNote(t, vault, "no-timestamp.md", "---\nstatus: processed\nprocessed: true\n---\n")

	result := h.RunScheduled(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, "archived 0 notes", result.Message)
}
