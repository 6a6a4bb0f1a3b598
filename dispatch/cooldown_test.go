package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownNeverAttempted(t *testing.T) {
	store := NewCooldownStore()

	assert.True(t, store.Elapsed("/vault/note.md", 5*time.Minute))
	_, ok := store.SecondsSinceLast("/vault/note.md")
	assert.False(t, ok)
}

func TestCooldownBlocksWithinWindow(t *testing.T) {
	store := NewCooldownStore()
	current := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	store.RecordAttempt("/vault/note.md")

	current = current.Add(3 * time.Minute)
	assert.False(t, store.Elapsed("/vault/note.md", 5*time.Minute))

	since, ok := store.SecondsSinceLast("/vault/note.md")
	assert.True(t, ok)
	assert.Equal(t, 180.0, since)
}

func TestCooldownAllowsAfterWindow(t *testing.T) {
	store := NewCooldownStore()
	current := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	store.RecordAttempt("/vault/note.md")

	current = current.Add(5*time.Minute + time.Second)
	assert.True(t, store.Elapsed("/vault/note.md", 5*time.Minute))
}

func TestCooldownTracksItemsIndependently(t *testing.T) {
	store := NewCooldownStore()

	store.RecordAttempt("/vault/a.md")
	assert.False(t, store.Elapsed("/vault/a.md", time.Hour))
	assert.True(t, store.Elapsed("/vault/b.md", time.Hour))
}

func TestCooldownReRecordResetsWindow(t *testing.T) {
	store := NewCooldownStore()
	current := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	store.RecordAttempt("/vault/note.md")
	current = current.Add(4 * time.Minute)
	store.RecordAttempt("/vault/note.md")
	current = current.Add(2 * time.Minute)

	assert.False(t, store.Elapsed("/vault/note.md", 5*time.Minute),
		"window restarts from the most recent attempt")
}
