package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"customer-manager/internal/common/logger"
	"customer-manager/internal/common/metrics"
	"customer-manager/internal/models"
)

// CachedGateway is a read-through Redis cache in front of another Gateway.
// Only successful lookups are cached; failures always reach the remote
// service again. Redis problems are logged and bypassed.
type CachedGateway struct {
	next   Gateway
	redis  redis.Cmdable
	ttl    time.Duration
	prefix string
	logger logger.Logger
}

func NewCachedGateway(next Gateway, rdb redis.Cmdable, ttl time.Duration, prefix string, log logger.Logger) *CachedGateway {
	return &CachedGateway{
		next:   next,
		redis:  rdb,
		ttl:    ttl,
		prefix: prefix,
		logger: log.WithFields(map[string]interface{}{"component": "gateway-cache"}),
	}
}

func (c *CachedGateway) VerifyPAN(ctx context.Context, pan string) (*PANResult, error) {
	key := c.key(metrics.KindPAN, pan)

	var cached PANResult
	if c.get(ctx, metrics.KindPAN, key, &cached) {
		return &cached, nil
	}

	result, err := c.next.VerifyPAN(ctx, pan)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, result)
	return result, nil
}

func (c *CachedGateway) LookupPostcode(ctx context.Context, postcode string) (*models.Place, error) {
	key := c.key(metrics.KindPostcode, postcode)

	var cached models.Place
	if c.get(ctx, metrics.KindPostcode, key, &cached) {
		return &cached, nil
	}

	place, err := c.next.LookupPostcode(ctx, postcode)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, place)
	return place, nil
}

func (c *CachedGateway) key(kind, value string) string {
	return fmt.Sprintf("%s:lookup:%s:%s", c.prefix, kind, value)
}

func (c *CachedGateway) get(ctx context.Context, kind, key string, dst interface{}) bool {
	val, err := c.redis.Get(ctx, key).Result()
	switch {
	case stderrors.Is(err, redis.Nil):
		metrics.CacheLookups.WithLabelValues(kind, "miss").Inc()
		return false
	case err != nil:
		metrics.CacheLookups.WithLabelValues(kind, "error").Inc()
		c.logger.Warn("Cache read failed", map[string]interface{}{"key": key, "error": err})
		return false
	}

	if err := json.Unmarshal([]byte(val), dst); err != nil {
		metrics.CacheLookups.WithLabelValues(kind, "error").Inc()
		c.logger.Warn("Discarding corrupt cache entry", map[string]interface{}{"key": key, "error": err})
		return false
	}
	metrics.CacheLookups.WithLabelValues(kind, "hit").Inc()
	return true
}

func (c *CachedGateway) set(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, string(data), c.ttl).Err(); err != nil {
		c.logger.Warn("Cache write failed", map[string]interface{}{"key": key, "error": err})
	}
}
