package extract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/markusmobius/go-trafilatura"
)

func (e *Extractors) extractWeb(ctx context.Context, locator string) (*Document, error) {
	u, ok := remoteURL(locator)
	if !ok {
		return nil, fmt.Errorf("%w: not an http(s) url: %q", ErrUnsupportedSource, locator)
	}
	f, err := e.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	switch f.mimeType {
	case "text/html", "application/xhtml+xml":
		return e.webPage(f)
	default:
		// Links to PDFs and plain text are still worth ingesting.
		return e.convert(f.body, f.url.Path, f.mimeType, f)
	}
}

// webPage extracts the main content with trafilatura, falling back to the
// full visible text when it finds none. Links always come from the full page.
func (e *Extractors) webPage(f *fetched) (*Document, error) {
	page, err := parseHTML(f.body, f.url)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing html: %w", ErrUnsupportedSource, err)
	}
	doc := &Document{
		Title:    page.title,
		Text:     page.text,
		MimeType: f.mimeType,
		Links:    page.links,
	}

	result, err := trafilatura.Extract(bytes.NewReader(f.body), trafilatura.Options{OriginalURL: f.url})
	switch {
	case err != nil:
		e.logger.Debug("main content extraction failed, using full text", "url", f.url, "err", err)
	case result == nil || result.ContentText == "":
		e.logger.Debug("no main content found, using full text", "url", f.url)
	default:
		doc.Text = result.ContentText
		if result.Metadata.Title != "" {
			doc.Title = result.Metadata.Title
		}
	}
	return doc, nil
}
