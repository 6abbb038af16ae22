package crawl

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default bounds of the per-host request rate.
const (
	DefaultMinRate = 0.2
	DefaultMaxRate = 5.0
)

// Limiter spaces requests to each host by the host's crawl delay, within
// [minRate, maxRate] requests per second. A host's rate is fixed by the
// first delay seen for it.
type Limiter struct {
	hosts   sync.Map // map[string]*rate.Limiter
	minRate float64
	maxRate float64
}

// NewLimiter creates a limiter with the given rate bounds. Non-positive
// bounds use the defaults.
func NewLimiter(minRate, maxRate float64) *Limiter {
	if minRate <= 0 {
		minRate = DefaultMinRate
	}
	if maxRate <= 0 {
		maxRate = DefaultMaxRate
	}
	if minRate > maxRate {
		minRate = maxRate
	}
	return &Limiter{minRate: minRate, maxRate: maxRate}
}

// Wait blocks until a request to host is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, host string, crawlDelay time.Duration) error {
	return l.limiter(host, crawlDelay).Wait(ctx)
}

func (l *Limiter) limiter(host string, crawlDelay time.Duration) *rate.Limiter {
	if lim, ok := l.hosts.Load(host); ok {
		return lim.(*rate.Limiter)
	}
	actual, _ := l.hosts.LoadOrStore(host, rate.NewLimiter(rate.Limit(l.rateFor(crawlDelay)), 1))
	return actual.(*rate.Limiter)
}

func (l *Limiter) rateFor(crawlDelay time.Duration) float64 {
	rps := l.maxRate
	if crawlDelay > 0 {
		rps = 1 / crawlDelay.Seconds()
	}
	return min(max(rps, l.minRate), l.maxRate)
}
