package settings

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotwise/libs/metrics"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client the cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedStore is a read-through cache in front of another Store. Cache errors never fail a
// request; they only cost a trip to the underlying store.
//
// Reads fill the cache with SETNX and saves overwrite it, so a read that loaded the old
// document before a concurrent save cannot put it back.
type CachedStore struct {
	next    Store
	rdb     RedisClient
	ttl     time.Duration
	prefix  string
	logger  *slog.Logger
	metrics *metrics.Collector
}

func NewCachedStore(next Store, rdb RedisClient, ttl time.Duration, logger *slog.Logger, m *metrics.Collector) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{next: next, rdb: rdb, ttl: ttl, prefix: "availability:settings:", logger: logger, metrics: m}
}

func (c *CachedStore) key(businessID string) string {
	return c.prefix + businessID
}

func (c *CachedStore) Get(ctx context.Context, businessID string) (schedule.Settings, error) {
	raw, err := c.rdb.Get(ctx, c.key(businessID)).Bytes()
	switch {
	case err == nil:
		s, dErr := decode(businessID, raw)
		if dErr == nil {
			if c.metrics != nil {
				c.metrics.SettingsReadsTotal.WithLabelValues("cache").Inc()
			}
			return s, nil
		}
		c.logger.Warn("discarding unreadable cached settings", "business_id", businessID, "err", dErr)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("settings cache read failed", "business_id", businessID, "err", err)
	}

	s, err := c.next.Get(ctx, businessID)
	if err != nil {
		return schedule.Settings{}, err
	}
	if doc, eErr := encode(s); eErr == nil {
		if sErr := c.rdb.SetNX(ctx, c.key(businessID), doc, c.ttl).Err(); sErr != nil {
			c.logger.Warn("settings cache write failed", "business_id", businessID, "err", sErr)
		}
	}
	return s, nil
}

func (c *CachedStore) Save(ctx context.Context, s schedule.Settings) error {
	if err := c.next.Save(ctx, s); err != nil {
		return err
	}
	doc, err := encode(s)
	if err == nil {
		err = c.rdb.Set(ctx, c.key(s.BusinessID), doc, c.ttl).Err()
	}
	if err == nil {
		return nil
	}
	c.logger.Warn("settings cache refresh failed, invalidating", "business_id", s.BusinessID, "err", err)
	if err := c.rdb.Del(ctx, c.key(s.BusinessID)).Err(); err != nil {
		c.logger.Warn("settings cache invalidate failed", "business_id", s.BusinessID, "err", err)
	}
	return nil
}
