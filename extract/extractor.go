// Package extract turns raw transcript text into structured quotes using the
// LLM collaborator.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360studio/vaultd/llm"
)

// maxTranscriptChars limits transcript content sent for extraction.
// Long transcripts are truncated at a paragraph boundary; the opening of a
// conversation carries most quotable material.
const maxTranscriptChars = 24000

// Quote is one extracted quote.
type Quote struct {
	// Text is the quote itself.
	Text string `json:"text"`

	// Speaker attributes the quote when the transcript identifies one.
	Speaker string `json:"speaker,omitempty"`

	// Context is a one-line setup for the quote.
	Context string `json:"context,omitempty"`
}

// Config constrains extraction output.
type Config struct {
	// MaxQuotes caps how many quotes are returned.
	MaxQuotes int

	// MinQuoteLength drops quotes shorter than this many characters.
	MinQuoteLength int
}

// Extractor extracts quotes from transcripts via the LLM client.
type Extractor struct {
	client *llm.Client
	config Config
}

// NewExtractor creates a quote extractor.
func NewExtractor(client *llm.Client, config Config) *Extractor {
	if config.MaxQuotes <= 0 {
		config.MaxQuotes = 10
	}
	if config.MinQuoteLength <= 0 {
		config.MinQuoteLength = 20
	}
	return &Extractor{client: client, config: config}
}

// ExtractQuotes asks the model for the most quotable passages in the
// transcript and returns them filtered by the configured constraints.
func (e *Extractor) ExtractQuotes(ctx context.Context, transcript string) ([]Quote, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("transcript is empty")
	}

	content := truncateAtParagraph(transcript, maxTranscriptChars)

	temp := 0.3 // Low temperature for consistent extraction
	resp, err := e.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: extractionSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(extractionUserPrompt, e.config.MaxQuotes, content)},
		},
		Temperature: &temp,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM extraction failed: %w", err)
	}

	quotes, err := parseQuotes(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	return e.filter(quotes), nil
}

// filter applies the length and count constraints.
func (e *Extractor) filter(quotes []Quote) []Quote {
	kept := make([]Quote, 0, len(quotes))
	for _, q := range quotes {
		q.Text = strings.TrimSpace(q.Text)
		if len(q.Text) < e.config.MinQuoteLength {
			continue
		}
		kept = append(kept, q)
		if len(kept) >= e.config.MaxQuotes {
			break
		}
	}
	return kept
}

// parseQuotes extracts the quote array from the model response.
func parseQuotes(content string) ([]Quote, error) {
	jsonStr := llm.ExtractJSONArray(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var quotes []Quote
	if err := json.Unmarshal([]byte(jsonStr), &quotes); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	return quotes, nil
}

// truncateAtParagraph truncates content to a maximum length, preferring a
// paragraph boundary when one falls in the second half.
func truncateAtParagraph(content string, maxChars int) string {
	if len(content) <= maxChars {
		return content
	}

	truncated := content[:maxChars]
	lastPara := strings.LastIndex(truncated, "\n\n")
	if lastPara > maxChars/2 {
		return truncated[:lastPara] + "\n\n[Transcript truncated for extraction...]"
	}

	return truncated + "\n\n[Transcript truncated for extraction...]"
}
