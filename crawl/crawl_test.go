package crawl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/extract"
	"github.com/poiesic/kexpand/ingestion"
	"github.com/poiesic/kexpand/jobs"
	"github.com/poiesic/kexpand/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linkProcessor succeeds every item and reports the links configured for its URL.
type linkProcessor struct {
	links map[string][]string
}

func (p *linkProcessor) ProcessWithObserver(_ context.Context, item ingestion.Item, _ ingestion.StageObserver) *ingestion.Outcome {
	return &ingestion.Outcome{
		Item:   item,
		Stage:  ingestion.StageDone,
		NodeID: core.NodeIDForLocator(item.Locator),
		Links:  p.links[item.Locator],
	}
}

func setupScheduler(t *testing.T, links map[string][]string, opts ...Option) (*Scheduler, *jobs.Controller) {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	controller, err := jobs.NewController(&linkProcessor{links: links}, store.History)
	require.NoError(t, err)
	t.Cleanup(func() { controller.Close() })

	s, err := NewScheduler(controller, opts...)
	require.NoError(t, err)
	return s, controller
}

func runCrawl(t *testing.T, s *Scheduler, c *jobs.Controller, seeds []string, cfg Config) *jobs.Snapshot {
	t.Helper()
	snap, err := s.Start(context.Background(), seeds, cfg, core.DefaultJobConfig())
	require.NoError(t, err)
	assert.Equal(t, core.JobKindCrawl, snap.Kind)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	final, err := c.Wait(ctx, snap.JobID)
	require.NoError(t, err)
	require.Equal(t, core.JobStatusCompleted, final.Status)
	return final
}

func locators(s *jobs.Snapshot) map[string]int {
	out := make(map[string]int, len(s.Items))
	for _, it := range s.Items {
		out[it.Locator] = it.Depth
	}
	return out
}

func TestScheduler_DepthBound(t *testing.T) {
	links := map[string][]string{
		"https://example.com/a": {"/b"},
		"https://example.com/b": {"/c"},
		"https://example.com/c": {"/d"},
	}
	s, c := setupScheduler(t, links)

	final := runCrawl(t, s, c, []string{"https://example.com/a"}, Config{MaxDepth: 1, FollowLinks: true, SameDomainOnly: true})
	assert.Equal(t, map[string]int{
		"https://example.com/a": 0,
		"https://example.com/b": 1,
	}, locators(final))
	assert.Equal(t, 2, final.TotalItems)
	assert.Equal(t, 2, final.ProcessedItems)
}

func TestScheduler_NoFollow(t *testing.T) {
	links := map[string][]string{"https://example.com/a": {"/b"}}
	s, c := setupScheduler(t, links)

	final := runCrawl(t, s, c, []string{"https://example.com/a"}, Config{MaxDepth: 3, FollowLinks: false})
	assert.Equal(t, map[string]int{"https://example.com/a": 0}, locators(final))
}

func TestScheduler_DomainRestriction(t *testing.T) {
	links := map[string][]string{
		"https://example.com/a": {
			"/b",
			"https://blog.example.com/post",
			"https://other.org/page",
			"mailto:someone@example.com",
			"#top",
		},
	}

	s, c := setupScheduler(t, links)
	final := runCrawl(t, s, c, []string{"https://example.com/a"}, Config{MaxDepth: 2, FollowLinks: true, SameDomainOnly: true})
	assert.Equal(t, map[string]int{
		"https://example.com/a":         0,
		"https://example.com/b":         1,
		"https://blog.example.com/post": 1,
	}, locators(final))

	s, c = setupScheduler(t, links)
	final = runCrawl(t, s, c, []string{"https://example.com/a"}, Config{MaxDepth: 2, FollowLinks: true, SameDomainOnly: false})
	assert.Contains(t, locators(final), "https://other.org/page")
	assert.Len(t, final.Items, 4)
}

func TestScheduler_VisitedSet(t *testing.T) {
	links := map[string][]string{
		"https://example.com/":  {"/a", "/b", "/a#section"},
		"https://example.com/a": {"/", "/b"},
		"https://example.com/b": {"/a", "/"},
	}
	s, c := setupScheduler(t, links)

	final := runCrawl(t, s, c, []string{"https://example.com/", "https://example.com/#dup"}, Config{MaxDepth: 5, FollowLinks: true, SameDomainOnly: true})
	assert.Len(t, final.Items, 3)
	seen := map[string]bool{}
	for _, it := range final.Items {
		assert.False(t, seen[it.Locator], "duplicate %s", it.Locator)
		seen[it.Locator] = true
	}
}

func TestScheduler_RobotsFiltersLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	seed := srv.URL + "/index"
	links := map[string][]string{seed: {"/public", "/private/report"}}
	s, c := setupScheduler(t, links, WithRobots(NewRobots("kexpand-test", srv.Client())))

	final := runCrawl(t, s, c, []string{seed}, Config{MaxDepth: 1, FollowLinks: true, SameDomainOnly: true})
	got := locators(final)
	assert.Contains(t, got, srv.URL+"/public")
	assert.NotContains(t, got, srv.URL+"/private/report")
}

func TestScheduler_StartValidation(t *testing.T) {
	s, _ := setupScheduler(t, nil)
	ctx := context.Background()

	_, err := s.Start(ctx, nil, DefaultConfig(), core.DefaultJobConfig())
	assert.ErrorIs(t, err, ErrNoSeeds)

	_, err = s.Start(ctx, []string{"ftp://example.com/file"}, DefaultConfig(), core.DefaultJobConfig())
	assert.ErrorIs(t, err, ErrInvalidSeed)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = s.Start(ctx, []string{"https://example.com"}, Config{MaxDepth: -1}, core.DefaultJobConfig())
	assert.ErrorIs(t, err, ErrInvalidDepth)

	_, err = NewScheduler(nil)
	assert.ErrorIs(t, err, ErrControllerRequired)
}

func TestRegistrableDomain(t *testing.T) {
	assert.Equal(t, "example.com", registrableDomain("www.example.com"))
	assert.Equal(t, "example.co.uk", registrableDomain("news.example.co.uk"))
	assert.Equal(t, "127.0.0.1", registrableDomain("127.0.0.1"))
	assert.Equal(t, "localhost", registrableDomain("localhost"))
}

func TestRobots(t *testing.T) {
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte("User-agent: *\nDisallow: /admin\nCrawl-delay: 30\n"))
	}))
	defer srv.Close()

	r := NewRobots("kexpand-test", srv.Client())
	ctx := context.Background()

	ok, delay, err := r.Allowed(ctx, srv.URL+"/docs/page")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, MaxCrawlDelay, delay)

	ok, _, err = r.Allowed(ctx, srv.URL+"/admin/users")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), fetches.Load(), "robots.txt is cached")
}

func TestRobots_MissingFileAllowsAll(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := NewRobots("kexpand-test", srv.Client())
	ok, delay, err := r.Allowed(context.Background(), srv.URL+"/anything")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, DefaultCrawlDelay, delay)
}

func TestLimiter(t *testing.T) {
	l := NewLimiter(0, 0)
	assert.InDelta(t, 1.0, l.rateFor(time.Second), 1e-9)
	assert.InDelta(t, DefaultMaxRate, l.rateFor(10*time.Millisecond), 1e-9)
	assert.InDelta(t, DefaultMinRate, l.rateFor(time.Minute), 1e-9)

	fast := NewLimiter(0, 1000)
	ctx := context.Background()
	require.NoError(t, fast.Wait(ctx, "example.com", 0))
	require.NoError(t, fast.Wait(ctx, "example.com", 0))

	slow := NewLimiter(0.2, 0.2)
	require.NoError(t, slow.Wait(ctx, "example.com", 0))
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, slow.Wait(cancelled, "example.com", 0))
}

// stubExtractor records the locators it was asked for.
type stubExtractor struct {
	calls []string
}

func (s *stubExtractor) Extract(_ context.Context, locator string, _ core.SourceType) (*extract.Document, error) {
	s.calls = append(s.calls, locator)
	return &extract.Document{Text: "text"}, nil
}

func TestPoliteExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /secret\n"))
	}))
	defer srv.Close()

	next := &stubExtractor{}
	p := NewPoliteExtractor(next, NewRobots("kexpand-test", srv.Client()), NewLimiter(0, 1000))
	ctx := context.Background()

	_, err := p.Extract(ctx, srv.URL+"/open", core.SourceTypeWeb)
	require.NoError(t, err)

	_, err = p.Extract(ctx, srv.URL+"/secret/page", core.SourceTypeWeb)
	assert.ErrorIs(t, err, ErrDisallowed)
	assert.True(t, errors.Is(err, core.ErrExtraction))

	_, err = p.Extract(ctx, "notes.txt", core.SourceTypeDocument)
	require.NoError(t, err)
	assert.True(t, slices.Equal([]string{srv.URL + "/open", "notes.txt"}, next.calls))
}
