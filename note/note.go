// Package note models markdown notes with YAML frontmatter and provides the
// repository through which all daemon reads and writes of note state go.
package note

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Status values for the note processing lifecycle.
const (
	StatusDraft      = "draft"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
)

// Frontmatter field names the daemon reads or writes. Everything else in the
// frontmatter is opaque passthrough.
const (
	FieldStatus                = "status"
	FieldReadyForProcessing    = "ready_for_processing"
	FieldProcessed             = "processed"
	FieldProcessingStartedAt   = "processing_started_at"
	FieldProcessingCompletedAt = "processing_completed_at"
	FieldType                  = "type"
	FieldTags                  = "tags"
	FieldTranscriptURL         = "transcript_url"
	FieldQuoteCount            = "quote_count"
	FieldSourceImage           = "source_image"
	FieldArchivedArtifact      = "archived_artifact"
	FieldSuggestLinks          = "suggest_links"
	FieldSuggestedLinks        = "suggested_links"
)

// ErrMalformed indicates the note's frontmatter could not be parsed.
// Handlers treat malformed notes as "cannot handle" and leave them untouched.
var ErrMalformed = errors.New("malformed frontmatter")

// Note is a markdown document with YAML frontmatter. The frontmatter map is
// the single source of truth for the note's processing state; nothing is
// cached across loads.
type Note struct {
	// Frontmatter holds all header fields, daemon-owned and opaque alike.
	Frontmatter map[string]any

	// Body is the markdown content after the closing frontmatter delimiter.
	Body string
}

// Parse parses a markdown document, extracting frontmatter and body.
// Content without a frontmatter block yields a Note with an empty map.
func Parse(content []byte) (*Note, error) {
	str := string(content)

	if !strings.HasPrefix(str, "---\n") && !strings.HasPrefix(str, "---\r\n") {
		return &Note{Frontmatter: map[string]any{}, Body: str}, nil
	}

	frontmatter, body, err := extractFrontmatter(str)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if frontmatter == nil {
		frontmatter = map[string]any{}
	}
	return &Note{Frontmatter: frontmatter, Body: body}, nil
}

// Render serializes the note back to markdown with a frontmatter block.
func (n *Note) Render() ([]byte, error) {
	var buf strings.Builder

	if len(n.Frontmatter) > 0 {
		data, err := yaml.Marshal(n.Frontmatter)
		if err != nil {
			return nil, fmt.Errorf("marshal frontmatter: %w", err)
		}
		buf.WriteString("---\n")
		buf.Write(data)
		buf.WriteString("---\n")
		if n.Body != "" && !strings.HasPrefix(n.Body, "\n") {
			buf.WriteString("\n")
		}
	}
	buf.WriteString(n.Body)

	return []byte(buf.String()), nil
}

// Status returns the note's lifecycle status, defaulting to draft when unset.
func (n *Note) Status() string {
	if s := n.getString(FieldStatus); s != "" {
		return s
	}
	return StatusDraft
}

// SetStatus sets the note's lifecycle status.
func (n *Note) SetStatus(status string) {
	n.Frontmatter[FieldStatus] = status
}

// ReadyForProcessing reports the user-owned approval flag. The daemon reads
// this flag but must never write it.
func (n *Note) ReadyForProcessing() bool {
	return n.getBool(FieldReadyForProcessing)
}

// Processed reports whether the note has completed processing.
func (n *Note) Processed() bool {
	return n.getBool(FieldProcessed)
}

// SetProcessed sets the processed flag.
func (n *Note) SetProcessed(v bool) {
	n.Frontmatter[FieldProcessed] = v
}

// SetProcessingStartedAt records when processing began.
func (n *Note) SetProcessingStartedAt(t time.Time) {
	n.Frontmatter[FieldProcessingStartedAt] = t.UTC().Format(time.RFC3339)
}

// SetProcessingCompletedAt records when processing finished.
func (n *Note) SetProcessingCompletedAt(t time.Time) {
	n.Frontmatter[FieldProcessingCompletedAt] = t.UTC().Format(time.RFC3339)
}

// ProcessingCompletedAt returns the completion timestamp, if present and valid.
func (n *Note) ProcessingCompletedAt() (time.Time, bool) {
	raw := n.getString(FieldProcessingCompletedAt)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Type returns the note type field ("transcript", "screenshot", ...).
func (n *Note) Type() string {
	return n.getString(FieldType)
}

// Tags returns the note's tags, tolerating both string and list shapes.
func (n *Note) Tags() []string {
	raw, ok := n.Frontmatter[FieldTags]
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				tags = append(tags, s)
			}
		}
		return tags
	default:
		return nil
	}
}

// GetString returns a string frontmatter field, or "" if absent or not a string.
func (n *Note) GetString(field string) string {
	return n.getString(field)
}

// GetBool returns a boolean frontmatter field, false if absent or mistyped.
func (n *Note) GetBool(field string) bool {
	return n.getBool(field)
}

// Set writes an arbitrary frontmatter field.
func (n *Note) Set(field string, value any) {
	n.Frontmatter[field] = value
}

func (n *Note) getString(field string) string {
	if v, ok := n.Frontmatter[field].(string); ok {
		return v
	}
	return ""
}

func (n *Note) getBool(field string) bool {
	if v, ok := n.Frontmatter[field].(bool); ok {
		return v
	}
	return false
}

// extractFrontmatter parses YAML frontmatter from markdown content.
// Returns the parsed frontmatter map, the remaining body, and any error.
func extractFrontmatter(content string) (map[string]any, string, error) {
	const delimiter = "---"

	// Skip the opening delimiter
	start := len(delimiter)
	if len(content) > start && content[start] == '\r' {
		start++
	}
	if len(content) > start && content[start] == '\n' {
		start++
	}

	// Find the closing delimiter
	closeIdx := strings.Index(content[start:], "\n"+delimiter)
	if closeIdx == -1 {
		closeIdx = strings.Index(content[start:], "\r\n"+delimiter)
	}
	if closeIdx == -1 {
		return nil, content, fmt.Errorf("no closing frontmatter delimiter")
	}

	yamlContent := content[start : start+closeIdx]

	// Find where the body starts (after closing delimiter and newline)
	bodyStart := start + closeIdx + 1 + len(delimiter)
	for bodyStart < len(content) && (content[bodyStart] == '\n' || content[bodyStart] == '\r') {
		bodyStart++
	}

	body := ""
	if bodyStart < len(content) {
		body = content[bodyStart:]
	}

	var frontmatter map[string]any
	if err := yaml.Unmarshal([]byte(yamlContent), &frontmatter); err != nil {
		return nil, content, fmt.Errorf("parse YAML frontmatter: %w", err)
	}

	return frontmatter, body, nil
}
