// Package ratelimit enforces minimum spacing between fetches to the same
// domain, regardless of how many tasks target it concurrently.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/parselab/shop-parser/internal/telemetry"
)

// Limiter manages per-domain fetch spacing. Each domain gets a token bucket
// with burst 1, so consecutive fetches are at least one interval apart.
type Limiter struct {
	mu              sync.Mutex
	limiters        map[string]*domainLimiter
	defaultInterval time.Duration
}

type domainLimiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultInterval time.Duration
}

// New creates a Limiter. A non-positive default interval falls back to 2s.
func New(cfg Config) *Limiter {
	interval := cfg.DefaultInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Limiter{
		limiters:        make(map[string]*domainLimiter),
		defaultInterval: interval,
	}
}

// Wait blocks until the domain of rawURL permits another fetch, respecting
// the context. A positive interval overrides the domain's current spacing
// (site profile or per-task override); zero keeps the existing one.
func (l *Limiter) Wait(ctx context.Context, rawURL string, interval time.Duration) error {
	domain := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}

	l.mu.Lock()
	dl, exists := l.limiters[domain]
	if !exists {
		want := interval
		if want <= 0 {
			want = l.defaultInterval
		}
		dl = &domainLimiter{
			limiter:  rate.NewLimiter(rate.Every(want), 1),
			interval: want,
		}
		l.limiters[domain] = dl
	} else if interval > 0 && interval != dl.interval {
		dl.limiter.SetLimit(rate.Every(interval))
		dl.interval = interval
	}
	l.mu.Unlock()

	start := time.Now()
	if err := dl.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		telemetry.ObserveRateLimitDelay(domain, waited)
	}
	return nil
}

// Interval reports the current spacing configured for a domain, falling
// back to the default.
func (l *Limiter) Interval(domain string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if dl, ok := l.limiters[domain]; ok {
		return dl.interval
	}
	return l.defaultInterval
}
