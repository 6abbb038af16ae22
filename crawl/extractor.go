package crawl

import (
	"context"
	"fmt"
	"net/url"

	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/extract"
)

// PoliteExtractor checks robots.txt and waits on the per-host limiter
// before every web fetch. Other source types pass straight through.
type PoliteExtractor struct {
	next    extract.Extractor
	robots  *Robots
	limiter *Limiter
}

var _ extract.Extractor = (*PoliteExtractor)(nil)

// NewPoliteExtractor wraps next. A nil robots checker allows every URL.
func NewPoliteExtractor(next extract.Extractor, robots *Robots, limiter *Limiter) *PoliteExtractor {
	if limiter == nil {
		limiter = NewLimiter(0, 0)
	}
	return &PoliteExtractor{next: next, robots: robots, limiter: limiter}
}

// Extract implements extract.Extractor.
func (p *PoliteExtractor) Extract(ctx context.Context, locator string, sourceType core.SourceType) (*extract.Document, error) {
	if sourceType != core.SourceTypeWeb {
		return p.next.Extract(ctx, locator, sourceType)
	}
	u, err := url.Parse(locator)
	if err != nil || u.Host == "" {
		return p.next.Extract(ctx, locator, sourceType)
	}

	delay := DefaultCrawlDelay
	if p.robots != nil {
		allowed, d, err := p.robots.Allowed(ctx, locator)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, locator)
		}
		delay = d
	}
	if err := p.limiter.Wait(ctx, u.Host, delay); err != nil {
		return nil, err
	}
	return p.next.Extract(ctx, locator, sourceType)
}
