package webfetch

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// excessiveLinesRe collapses runs of blank lines left over from conversion.
var excessiveLinesRe = regexp.MustCompile(`\n{4,}`)

// Transcript is the fetched page reduced to usable text.
type Transcript struct {
	// Title is the page or article title.
	Title string

	// Markdown is the readable content converted to markdown.
	Markdown string

	// SourceURL is the page the transcript came from.
	SourceURL string
}

// converter is shared; html-to-markdown converters are safe for reuse.
var converter = newConverter()

func newConverter() *md.Converter {
	c := md.NewConverter("", true, nil)
	c.Use(plugin.GitHubFlavored())
	return c
}

// Convert reduces raw HTML to a markdown transcript. Readability extraction
// strips navigation, ads, and boilerplate; the remaining article HTML is
// converted to markdown.
func Convert(rawHTML []byte, sourceURL string) (*Transcript, error) {
	parsedURL, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("parse source URL: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(rawHTML), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("readability extraction: %w", err)
	}

	markdown, err := converter.ConvertString(article.Content)
	if err != nil {
		return nil, fmt.Errorf("markdown conversion: %w", err)
	}
	markdown = cleanMarkdown(markdown)

	if strings.TrimSpace(markdown) == "" {
		return nil, fmt.Errorf("no readable content extracted")
	}

	title := article.Title
	if title == "" {
		title = extractHTMLTitle(rawHTML)
	}

	return &Transcript{
		Title:     title,
		Markdown:  markdown,
		SourceURL: sourceURL,
	}, nil
}

// cleanMarkdown tidies converter output.
func cleanMarkdown(markdown string) string {
	markdown = excessiveLinesRe.ReplaceAllString(markdown, "\n\n\n")
	return strings.TrimSpace(markdown)
}

// extractHTMLTitle extracts the <title> from HTML.
func extractHTMLTitle(content []byte) string {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return ""
	}

	var title string
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if title != "" {
				return
			}
			extract(c)
		}
	}
	extract(doc)

	return title
}
