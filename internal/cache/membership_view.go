package cache

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultMembershipTTL        = 10 * time.Minute
	membershipInvalidateChannel = "membership:invalidate"
)

// MembershipView is the derived membership-status answer served to the
// messaging platform. It is a pure function of the local package cache, so
// it is safe to serve stale up to the TTL and must be invalidated whenever
// the underlying package snapshot changes.
type MembershipView struct {
	PlatformUserID string    `json:"platform_user_id"`
	CustomerID     string    `json:"customer_id"`
	Active         bool      `json:"active"`
	RemainingUnits int       `json:"remaining_units"`
	ComputedAt     time.Time `json:"computed_at"`
}

// MembershipViewCache serves membership views keyed by messaging-platform
// user id. With redis configured, invalidations fan out to every process
// through a pub/sub channel; without it the cache is process-local only.
type MembershipViewCache interface {
	Get(platformUserID string) (MembershipView, bool)
	Set(platformUserID string, view MembershipView)
	Invalidate(ctx context.Context, platformUserID string)
}

type membershipViewCache struct {
	views  Cache[string, MembershipView]
	ttl    time.Duration
	client *redis.Client
	sub    *redis.PubSub
	log    *zap.Logger
}

func NewMembershipViewCache(client *redis.Client, log *zap.Logger) MembershipViewCache {
	c := &membershipViewCache{
		views:  NewTTLCache[string, MembershipView](),
		ttl:    defaultMembershipTTL,
		client: client,
		log:    log.Named("cache.membership"),
	}
	if client != nil {
		c.sub = client.Subscribe(context.Background(), membershipInvalidateChannel)
		go c.subscribeInvalidations()
	}
	return c
}

// Close tears down the pub/sub subscription; the subscriber goroutine exits
// when its channel drains.
func (c *membershipViewCache) Close() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Close()
}

func (c *membershipViewCache) Get(platformUserID string) (MembershipView, bool) {
	key := normalizeKey(platformUserID)
	if key == "" {
		return MembershipView{}, false
	}
	return c.views.Get(key)
}

func (c *membershipViewCache) Set(platformUserID string, view MembershipView) {
	key := normalizeKey(platformUserID)
	if key == "" {
		return
	}
	c.views.Set(key, view, c.ttl)
}

func (c *membershipViewCache) Invalidate(ctx context.Context, platformUserID string) {
	key := normalizeKey(platformUserID)
	if key == "" {
		return
	}
	c.views.Delete(key)
	if c.client == nil {
		return
	}
	if err := c.client.Publish(ctx, membershipInvalidateChannel, key).Err(); err != nil {
		c.log.Warn("membership invalidation publish failed", zap.Error(err))
	}
}

func (c *membershipViewCache) subscribeInvalidations() {
	for msg := range c.sub.Channel() {
		c.views.Delete(msg.Payload)
	}
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
