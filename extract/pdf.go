package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfText extracts the plain text of every page. Pages that fail to decode
// are skipped.
func (e *Extractors) pdfText(data []byte) (doc *Document, err error) {
	// The decoder panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("%w: corrupt pdf: %v", ErrUnsupportedSource, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid pdf: %w", ErrUnsupportedSource, err)
	}
	pages := reader.NumPage()
	if pages == 0 {
		return nil, fmt.Errorf("%w: pdf has no pages", ErrEmptyContent)
	}
	if pages > e.maxPDFPages {
		return nil, fmt.Errorf("%w: pdf has %d pages, max %d", ErrTooLarge, pages, e.maxPDFPages)
	}

	var text strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Debug("skipping unreadable pdf page", "page", i, "err", err)
			continue
		}
		content = strings.TrimSpace(strings.ReplaceAll(content, "\x00", ""))
		if content == "" {
			continue
		}
		text.WriteString(content)
		text.WriteString("\n\n")
	}

	return &Document{
		Title:    strings.TrimSpace(reader.Trailer().Key("Info").Key("Title").Text()),
		Text:     text.String(),
		MimeType: "application/pdf",
	}, nil
}
