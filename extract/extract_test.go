package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/kexpand/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!DOCTYPE html>
<html><head><title>Graph Notes</title><style>body { color: red }</style></head>
<body>
<nav><a href="/about">About</a> <a href="#top">Top</a> <a href="/about#team">Team</a></nav>
<article>
<h1>Graph Notes</h1>
<p>Knowledge graphs connect pieces of information through weighted relations so
that related material can be discovered by walking from one node to its
neighbours. Each node summarizes a single source and carries a set of tags.</p>
<p>Novel content becomes a new node, while content that repeats what is already
known is linked to the existing nodes instead of duplicating them.</p>
<p>See <a href="https://other.example.org/page#frag">elsewhere</a> or <a href="mailto:x@example.org">write</a>.</p>
</article>
<script>var secret = "hidden script text";</script>
</body></html>`

func newTestExtractors(t *testing.T, opts ...Option) *Extractors {
	t.Helper()
	e, err := New(opts...)
	require.NoError(t, err)
	return e
}

func TestParseHTML(t *testing.T) {
	base, _ := url.Parse("https://example.com/dir/index.html")
	content, err := parseHTML([]byte(page), base)
	require.NoError(t, err)

	assert.Equal(t, "Graph Notes", content.title)
	assert.Contains(t, content.text, "Knowledge graphs connect pieces of information")
	assert.NotContains(t, content.text, "hidden script text")
	assert.NotContains(t, content.text, "color: red")
	assert.Equal(t, []string{
		"https://example.com/about",
		"https://other.example.org/page",
	}, content.links)
}

func TestParseHTML_TitleFallsBackToHeading(t *testing.T) {
	content, err := parseHTML([]byte(`<html><body><h1>Only Heading</h1><p>body</p></body></html>`), nil)
	require.NoError(t, err)
	assert.Equal(t, "Only Heading", content.title)
	assert.Empty(t, content.links)
}

func TestExtract_Web(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.UserAgent()
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(page))
		case "/notes.txt":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("plain notes\nsecond line"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := newTestExtractors(t, WithUserAgent("kexpand-test"))
	ctx := context.Background()

	doc, err := e.Extract(ctx, srv.URL+"/page", core.SourceTypeWeb)
	require.NoError(t, err)
	assert.Equal(t, "kexpand-test", ua)
	assert.Contains(t, doc.Title, "Graph Notes")
	assert.Contains(t, doc.Text, "Knowledge graphs connect")
	assert.NotContains(t, doc.Text, "hidden script text")
	assert.Equal(t, []string{srv.URL + "/about", "https://other.example.org/page"}, doc.Links)

	doc, err = e.Extract(ctx, srv.URL+"/notes.txt", core.SourceTypeWeb)
	require.NoError(t, err)
	assert.Equal(t, "plain notes", doc.Title)

	_, err = e.Extract(ctx, srv.URL+"/missing", core.SourceTypeWeb)
	assert.ErrorIs(t, err, ErrFetch)
	assert.ErrorIs(t, err, core.ErrExtraction)

	_, err = e.Extract(ctx, "ftp://example.com/file", core.SourceTypeWeb)
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}

func TestExtract_SizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("a", 2048)))
	}))
	defer srv.Close()

	e := newTestExtractors(t, WithMaxBodySize(1024))
	_, err := e.Extract(context.Background(), srv.URL, core.SourceTypeWeb)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestExtract_Documents(t *testing.T) {
	dir := t.TempDir()
	md := filepath.Join(dir, "guide.md")
	require.NoError(t, os.WriteFile(md, []byte("# Guide\n\nUse **badger** for [storage](https://dgraph.io/badger).\n\n- one\n- two\n"), 0o644))
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("just text"), 0o644))
	bad := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("%PDF-1.4 not really"), 0o644))

	e := newTestExtractors(t)
	ctx := context.Background()

	doc, err := e.Extract(ctx, md, core.SourceTypeDocument)
	require.NoError(t, err)
	assert.Equal(t, "Guide", doc.Title)
	assert.Contains(t, doc.Text, "Use badger for storage.")
	assert.NotContains(t, doc.Text, "**")
	assert.Equal(t, []string{"https://dgraph.io/badger"}, doc.Links)

	doc, err = e.Extract(ctx, txt, core.SourceTypeDocument)
	require.NoError(t, err)
	assert.Equal(t, "just text", doc.Text)
	assert.Equal(t, "just text", doc.Title)

	_, err = e.Extract(ctx, bad, core.SourceTypeDocument)
	assert.ErrorIs(t, err, core.ErrExtraction)

	_, err = e.Extract(ctx, filepath.Join(dir, "absent.txt"), core.SourceTypeDocument)
	assert.ErrorIs(t, err, core.ErrExtraction)
}

func TestExtract_Text(t *testing.T) {
	e := newTestExtractors(t)

	doc, err := e.Extract(context.Background(), "Inline content about graphs.\nMore detail.", core.SourceTypeText)
	require.NoError(t, err)
	assert.Equal(t, "Inline content about graphs.", doc.Title)
	assert.Contains(t, doc.Text, "More detail.")

	_, err = e.Extract(context.Background(), "   ", core.SourceTypeText)
	assert.ErrorIs(t, err, core.ErrExtraction)
}

func TestExtract_Unsupported(t *testing.T) {
	e := newTestExtractors(t)
	for _, st := range []core.SourceType{core.SourceTypeAudio, core.SourceTypeVideo} {
		_, err := e.Extract(context.Background(), "clip.mp4", st)
		assert.ErrorIs(t, err, ErrUnsupportedSource)
		assert.Equal(t, core.ErrorKindExtraction, core.KindOf(err))
	}
	_, err := e.Extract(context.Background(), "x", core.SourceType("hologram"))
	assert.ErrorIs(t, err, core.ErrInvalidSourceType)
}

func TestOptions(t *testing.T) {
	_, err := New(WithMaxBodySize(0))
	assert.ErrorIs(t, err, core.ErrConfiguration)
	_, err = New(WithHTTPClient(nil))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
