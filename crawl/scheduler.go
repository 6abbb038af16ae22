// Package crawl turns seed URLs into a crawl job on the batch controller,
// following discovered links breadth-first up to a maximum depth.
package crawl

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/ingestion"
	"github.com/poiesic/kexpand/jobs"
	"golang.org/x/net/publicsuffix"
)

const robotsTimeout = 10 * time.Second

// Config controls link following for one crawl.
type Config struct {
	MaxDepth       int  `json:"max_depth" yaml:"max_depth"`
	FollowLinks    bool `json:"follow_links" yaml:"follow_links"`
	SameDomainOnly bool `json:"same_domain_only" yaml:"same_domain_only"`
}

// DefaultConfig returns a crawl that fetches only its seeds.
func DefaultConfig() Config {
	return Config{MaxDepth: 1, FollowLinks: false, SameDomainOnly: true}
}

// Scheduler starts crawl jobs.
type Scheduler struct {
	controller *jobs.Controller
	robots     *Robots
	logger     *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler) error

// WithRobots filters discovered links through robots.txt.
func WithRobots(robots *Robots) Option {
	return func(s *Scheduler) error {
		s.robots = robots
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewScheduler creates a scheduler submitting to controller.
func NewScheduler(controller *jobs.Controller, opts ...Option) (*Scheduler, error) {
	if controller == nil {
		return nil, ErrControllerRequired
	}
	s := &Scheduler{controller: controller, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "crawl")
	return s, nil
}

// Start submits seeds as depth-0 web items of a new crawl job. Links found
// on fetched pages are enqueued to the same job at depth+1 while the depth
// is below cfg.MaxDepth. No URL is enqueued twice within one crawl.
func (s *Scheduler) Start(ctx context.Context, seeds []string, cfg Config, jobCfg core.JobConfig) (*jobs.Snapshot, error) {
	if cfg.MaxDepth < 0 {
		return nil, ErrInvalidDepth
	}
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}

	c := &crawl{scheduler: s, cfg: cfg, visited: make(map[string]struct{})}
	items := make([]ingestion.Item, 0, len(seeds))
	for _, seed := range seeds {
		u, ok := normalize(strings.TrimSpace(seed), nil)
		if !ok {
			return nil, ErrInvalidSeed
		}
		if !c.visit(u) {
			continue
		}
		items = append(items, ingestion.Item{Locator: u.String(), SourceType: core.SourceTypeWeb})
	}

	snap, err := s.controller.Submit(ctx, core.JobKindCrawl, items, jobCfg, jobs.WithExpander(c.expand))
	if err != nil {
		return nil, err
	}
	s.logger.Info("crawl started", "job", snap.JobID, "seeds", len(items), "max_depth", cfg.MaxDepth, "follow_links", cfg.FollowLinks)
	return snap, nil
}

// crawl is the link-following state of one crawl job.
type crawl struct {
	scheduler *Scheduler
	cfg       Config

	mu      sync.Mutex
	visited map[string]struct{}
}

// visit marks u as seen and reports whether it was new.
func (c *crawl) visit(u *url.URL) bool {
	key := u.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.visited[key]; ok {
		return false
	}
	c.visited[key] = struct{}{}
	return true
}

// expand enqueues the admissible links of a fetched page.
func (c *crawl) expand(jobID string, item ingestion.Item, out *ingestion.Outcome) {
	if !c.cfg.FollowLinks || item.Depth >= c.cfg.MaxDepth || len(out.Links) == 0 {
		return
	}
	base, err := url.Parse(item.Locator)
	if err != nil {
		return
	}
	parentDomain := registrableDomain(base.Hostname())

	ctx, cancel := context.WithTimeout(context.Background(), robotsTimeout)
	defer cancel()

	var next []ingestion.Item
	for _, link := range out.Links {
		u, ok := normalize(link, base)
		if !ok {
			continue
		}
		if c.cfg.SameDomainOnly && registrableDomain(u.Hostname()) != parentDomain {
			continue
		}
		if !c.allowed(ctx, u) {
			continue
		}
		if !c.visit(u) {
			continue
		}
		next = append(next, ingestion.Item{
			Locator:    u.String(),
			SourceType: core.SourceTypeWeb,
			Depth:      item.Depth + 1,
		})
	}
	if len(next) == 0 {
		return
	}
	if _, err := c.scheduler.controller.Enqueue(jobID, next); err != nil {
		c.scheduler.logger.Warn("failed to enqueue discovered links", "job", jobID, "links", len(next), "err", err)
		return
	}
	c.scheduler.logger.Debug("links enqueued", "job", jobID, "parent", item.Locator, "links", len(next), "depth", item.Depth+1)
}

func (c *crawl) allowed(ctx context.Context, u *url.URL) bool {
	if c.scheduler.robots == nil {
		return true
	}
	ok, _, err := c.scheduler.robots.Allowed(ctx, u.String())
	if err != nil {
		c.scheduler.logger.Debug("robots check failed", "url", u.String(), "err", err)
		return false
	}
	return ok
}

// normalize resolves link against base and keeps absolute http(s) URLs
// without their fragment.
func normalize(link string, base *url.URL) (*url.URL, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return nil, false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, false
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Host = strings.ToLower(u.Host)
	return u, true
}

// registrableDomain returns the eTLD+1 of host, or host itself for IPs and
// hosts without a public suffix.
func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
