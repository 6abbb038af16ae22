// Package extract turns source locators into plain text.
//
// Web pages are fetched and reduced to their main content, documents are
// read from disk or over HTTP and converted by format (PDF, Markdown, HTML,
// plain text), and text sources are taken inline or from a file. Audio and
// video are not transcribed and fail with ErrUnsupportedSource.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/poiesic/kexpand/core"
)

const (
	DefaultUserAgent   = "kexpand/1.0 (+https://github.com/poiesic/kexpand)"
	DefaultMaxBodySize = 10 * 1024 * 1024
	DefaultMaxPDFPages = 500
)

// Document is the text extracted from one source.
type Document struct {
	Title    string
	Text     string
	MimeType string
	// Links holds absolute http(s) links found in web and HTML sources,
	// fragments removed, in document order without duplicates.
	Links []string
}

// Extractor produces a Document for a locator.
// Implementations must be thread-safe for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, locator string, sourceType core.SourceType) (*Document, error)
}

// Extractors dispatches by source type to the built-in extractors.
type Extractors struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	maxPDFPages int
	logger      *slog.Logger
}

var _ Extractor = (*Extractors)(nil)

// Option configures Extractors.
type Option func(*Extractors) error

// WithHTTPClient sets the client used for remote sources.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Extractors) error {
		if client == nil {
			return fmt.Errorf("%w: nil http client", core.ErrConfiguration)
		}
		e.client = client
		return nil
	}
}

// WithUserAgent sets the User-Agent sent with remote fetches.
func WithUserAgent(ua string) Option {
	return func(e *Extractors) error {
		e.userAgent = ua
		return nil
	}
}

// WithMaxBodySize caps the bytes read from any one source.
func WithMaxBodySize(n int64) Option {
	return func(e *Extractors) error {
		if n <= 0 {
			return fmt.Errorf("%w: max body size must be positive", core.ErrConfiguration)
		}
		e.maxBodySize = n
		return nil
	}
}

// WithMaxPDFPages caps the pages read from a PDF.
func WithMaxPDFPages(n int) Option {
	return func(e *Extractors) error {
		if n <= 0 {
			return fmt.Errorf("%w: max pdf pages must be positive", core.ErrConfiguration)
		}
		e.maxPDFPages = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractors) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// New creates the default extractor set.
func New(opts ...Option) (*Extractors, error) {
	e := &Extractors{
		client:      newHTTPClient(60 * time.Second),
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		maxPDFPages: DefaultMaxPDFPages,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "extract")
	return e, nil
}

// Extract reads locator according to sourceType.
// Every failure matches core.ErrExtraction.
func (e *Extractors) Extract(ctx context.Context, locator string, sourceType core.SourceType) (*Document, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrExtraction, core.ErrEmptyLocator)
	}

	var (
		doc *Document
		err error
	)
	switch sourceType {
	case core.SourceTypeWeb:
		doc, err = e.extractWeb(ctx, locator)
	case core.SourceTypeDocument:
		doc, err = e.extractDocument(ctx, locator)
	case core.SourceTypeText:
		doc, err = e.extractText(locator)
	case core.SourceTypeAudio, core.SourceTypeVideo:
		return nil, fmt.Errorf("%w: %s transcription is not available", ErrUnsupportedSource, sourceType)
	default:
		return nil, fmt.Errorf("%w: %w: %q", core.ErrExtraction, core.ErrInvalidSourceType, sourceType)
	}
	if err != nil {
		e.logger.Debug("extraction failed", "locator", locator, "type", sourceType, "err", err)
		return nil, err
	}

	doc.Text = strings.TrimSpace(doc.Text)
	if doc.Text == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyContent, locator)
	}
	e.logger.Debug("extracted", "locator", locator, "type", sourceType, "chars", len(doc.Text), "links", len(doc.Links))
	return doc, nil
}
