package crawl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
)

const (
	// DefaultCrawlDelay applies when robots.txt sets none or cannot be read.
	DefaultCrawlDelay = time.Second

	// MaxCrawlDelay caps the delay a site can ask for.
	MaxCrawlDelay = 10 * time.Second

	maxRobotsSize = 1 << 20
)

// Robots checks URLs against the robots.txt of their host. Parsed files
// are cached for a day; hosts without a readable robots.txt are cached as
// allow-all for an hour.
type Robots struct {
	cache     *cache.Cache
	userAgent string
	client    *http.Client
}

// NewRobots creates a robots.txt checker. A nil client gets a 10s timeout client.
func NewRobots(userAgent string, client *http.Client) *Robots {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Robots{
		cache:     cache.New(24*time.Hour, time.Hour),
		userAgent: userAgent,
		client:    client,
	}
}

// Allowed reports whether rawURL may be fetched and the crawl delay its host asks for.
func (r *Robots) Allowed(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("invalid URL: %w", err)
	}
	origin := u.Scheme + "://" + u.Host

	data, err := r.robots(ctx, origin)
	if err != nil {
		return false, 0, err
	}
	if data == nil {
		return true, DefaultCrawlDelay, nil
	}
	group := data.FindGroup(r.userAgent)
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path), crawlDelay(group), nil
}

// robots returns the parsed robots.txt of origin, or nil when there is none.
func (r *Robots) robots(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	if cached, found := r.cache.Get(origin); found {
		return cached.(*robotstxt.RobotsData), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.cache.Set(origin, (*robotstxt.RobotsData)(nil), time.Hour)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.cache.Set(origin, (*robotstxt.RobotsData)(nil), time.Hour)
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return nil, nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		r.cache.Set(origin, (*robotstxt.RobotsData)(nil), time.Hour)
		return nil, nil
	}
	r.cache.Set(origin, data, cache.DefaultExpiration)
	return data, nil
}

func crawlDelay(group *robotstxt.Group) time.Duration {
	if group.CrawlDelay <= 0 {
		return DefaultCrawlDelay
	}
	return min(group.CrawlDelay, MaxCrawlDelay)
}
