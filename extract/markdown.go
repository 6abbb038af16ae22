package extract

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// markdownText renders Markdown to HTML and reduces that to text, so
// formatting marks never reach the summarizer.
func markdownText(data []byte) (*Document, error) {
	var rendered bytes.Buffer
	if err := markdown.Convert(data, &rendered); err != nil {
		return nil, fmt.Errorf("%w: rendering markdown: %w", ErrUnsupportedSource, err)
	}
	content, err := parseHTML(rendered.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing rendered markdown: %w", ErrUnsupportedSource, err)
	}
	return &Document{
		Title:    content.title,
		Text:     content.text,
		MimeType: "text/markdown",
		Links:    content.links,
	}, nil
}
