package note

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	content := `---
status: draft
ready_for_processing: true
type: transcript
transcript_url: https://example.com/talk
tags:
  - golang
  - testing
custom_field: kept as-is
---

# Notes

Body text here.
`
	n, err := Parse([]byte(content))
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, n.Status())
	assert.True(t, n.ReadyForProcessing())
	assert.False(t, n.Processed())
	assert.Equal(t, "transcript", n.Type())
	assert.Equal(t, "https://example.com/talk", n.GetString(FieldTranscriptURL))
	assert.Equal(t, []string{"golang", "testing"}, n.Tags())
	assert.Equal(t, "kept as-is", n.GetString("custom_field"))
	assert.Contains(t, n.Body, "# Notes")
	assert.Contains(t, n.Body, "Body text here.")
}

func TestParseNoFrontmatter(t *testing.T) {
	n, err := Parse([]byte("# Just a heading\n\nPlain markdown.\n"))
	require.NoError(t, err)

	assert.Empty(t, n.Frontmatter)
	assert.Equal(t, StatusDraft, n.Status(), "missing status defaults to draft")
	assert.False(t, n.ReadyForProcessing())
	assert.Contains(t, n.Body, "# Just a heading")
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unclosed frontmatter", "---\nstatus: draft\n\nno closing delimiter"},
		{"invalid yaml", "---\nstatus: [unclosed\n---\nbody"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestRenderRoundTrip(t *testing.T) {
	original := `---
ready_for_processing: true
status: draft
tags:
    - one
    - two
---

Body content.
`
	n, err := Parse([]byte(original))
	require.NoError(t, err)

	rendered, err := n.Render()
	require.NoError(t, err)

	reparsed, err := Parse(rendered)
	require.NoError(t, err)

	assert.Equal(t, n.Frontmatter, reparsed.Frontmatter)
	assert.Equal(t, n.Body, reparsed.Body)
}

func TestRenderPreservesUnknownFields(t *testing.T) {
	n, err := Parse([]byte("---\naliases: [talk-notes]\nstatus: draft\n---\nbody"))
	require.NoError(t, err)

	n.SetStatus(StatusProcessed)
	n.SetProcessed(true)

	rendered, err := n.Render()
	require.NoError(t, err)

	reparsed, err := Parse(rendered)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, reparsed.Status())
	assert.True(t, reparsed.Processed())
	// The opaque field survives the daemon's write.
	assert.NotNil(t, reparsed.Frontmatter["aliases"])
}

func TestTagsShapes(t *testing.T) {
	single, err := Parse([]byte("---\ntags: solo\n---\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"solo"}, single.Tags())

	none, err := Parse([]byte("---\nstatus: draft\n---\n"))
	require.NoError(t, err)
	assert.Nil(t, none.Tags())

	mixed, err := Parse([]byte("---\ntags:\n  - ok\n  - 42\n---\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, mixed.Tags(), "non-string entries are dropped")
}

func TestProcessingTimestamps(t *testing.T) {
	n := &Note{Frontmatter: map[string]any{}}

	_, ok := n.ProcessingCompletedAt()
	assert.False(t, ok)

	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	n.SetProcessingCompletedAt(now)

	got, ok := n.ProcessingCompletedAt()
	require.True(t, ok)
	assert.True(t, got.Equal(now))

	n.Set(FieldProcessingCompletedAt, "not a timestamp")
	_, ok = n.ProcessingCompletedAt()
	assert.False(t, ok)
}

func TestTypedAccessorsTolerateWrongTypes(t *testing.T) {
	n, err := Parse([]byte("---\nstatus: 42\nready_for_processing: \"yes\"\n---\n"))
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, n.Status(), "non-string status falls back to draft")
	assert.False(t, n.ReadyForProcessing(), "non-bool approval reads as false")
}
