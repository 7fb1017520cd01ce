package ratelimit

import (
	"context"
	"time"

	"github.com/lilasstudio/crmlink/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyCRMCalls = "crm:calls"

// CRMCallLimiter paces outbound CRM calls across all processes sharing the
// redis instance. With no redis configured it degrades to a pass-through so
// single-node deployments work without extra infrastructure.
type CRMCallLimiter struct {
	enabled bool

	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewCRMCallLimiter(cfg config.Config, client *redis.Client) *CRMCallLimiter {
	if client == nil {
		return &CRMCallLimiter{}
	}
	if cfg.Resync.CRMCallRate <= 0 || cfg.Resync.CRMCallBurst <= 0 {
		return &CRMCallLimiter{}
	}
	return &CRMCallLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    cfg.Resync.CRMCallRate,
		burst:   cfg.Resync.CRMCallBurst,
	}
}

func (l *CRMCallLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *CRMCallLimiter) Allow(ctx context.Context) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, keyCRMCalls, l.rate, l.burst)
}

// Wait blocks until a call token is available or the context ends. Limiter
// errors are treated as allow so a redis outage never stalls sync work.
func (l *CRMCallLimiter) Wait(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}
	for {
		res, err := l.Allow(ctx)
		if err != nil {
			return nil
		}
		if res.Allowed {
			return nil
		}
		delay := res.RetryAfter
		if delay <= 0 {
			delay = 100 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
