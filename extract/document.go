package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

func (e *Extractors) extractDocument(ctx context.Context, locator string) (*Document, error) {
	if u, ok := remoteURL(locator); ok {
		f, err := e.fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		return e.convert(f.body, f.url.Path, f.mimeType, f)
	}
	data, err := e.readFile(locator)
	if err != nil {
		return nil, err
	}
	doc, err := e.convert(data, locator, "", nil)
	if err != nil {
		return nil, err
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(filepath.Base(locator), filepath.Ext(locator))
	}
	return doc, nil
}

// extractText treats locator as a file path when one exists, otherwise as
// the content itself.
func (e *Extractors) extractText(locator string) (*Document, error) {
	if info, err := os.Stat(locator); err == nil && info.Mode().IsRegular() {
		data, err := e.readFile(locator)
		if err != nil {
			return nil, err
		}
		return e.convert(data, locator, "", nil)
	}
	return &Document{Title: firstLine(locator, 80), Text: locator, MimeType: "text/plain"}, nil
}

// convert picks a decoder from the media type, the file extension and,
// failing both, the content itself. from is set for fetched bodies.
func (e *Extractors) convert(data []byte, name, mimeType string, from *fetched) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case mimeType == "application/pdf" || ext == ".pdf" || strings.HasPrefix(string(data[:min(len(data), 5)]), "%PDF-"):
		return e.pdfText(data)
	case mimeType == "text/markdown" || ext == ".md" || ext == ".markdown":
		return markdownText(data)
	case mimeType == "text/html" || mimeType == "application/xhtml+xml" || ext == ".html" || ext == ".htm":
		if from != nil {
			return e.webPage(from)
		}
		page, err := parseHTML(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing html: %w", ErrUnsupportedSource, err)
		}
		return &Document{Title: page.title, Text: page.text, MimeType: "text/html", Links: page.links}, nil
	case (mimeType == "" || strings.HasPrefix(mimeType, "text/")) && utf8.Valid(data):
		text := string(data)
		return &Document{Title: firstLine(text, 80), Text: text, MimeType: "text/plain"}, nil
	}
	return nil, fmt.Errorf("%w: content type %q", ErrUnsupportedSource, mimeType)
}

func firstLine(text string, limit int) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if r := []rune(text); len(r) > limit {
		text = string(r[:limit])
	}
	return strings.TrimSpace(text)
}
