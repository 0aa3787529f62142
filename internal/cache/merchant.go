// Package cache keeps merchant records in redis between settlements.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/acme/settlement/internal/domain"
	"github.com/acme/settlement/internal/merchant"
)

const keyPrefix = "merchant:"

// MerchantCache wraps a merchant.Getter with a redis read-through cache.
// Redis failures never fail a lookup; they only skip the cache.
type MerchantCache struct {
	rc     *redis.Client
	next   merchant.Getter
	ttl    time.Duration
	logger *slog.Logger
}

func NewMerchantCache(rc *redis.Client, next merchant.Getter, ttl time.Duration, logger *slog.Logger) *MerchantCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &MerchantCache{rc: rc, next: next, ttl: ttl, logger: logger}
}

func key(id string) string { return keyPrefix + id }

// GetMerchant returns the cached merchant for id, or loads it from the
// wrapped getter and caches it. Entries are keyed by the canonical id, so
// differently-cased requests for one merchant share an entry.
func (c *MerchantCache) GetMerchant(ctx context.Context, id string) (domain.Merchant, error) {
	if err := merchant.ValidateID(id); err != nil {
		return domain.Merchant{}, err
	}
	id = merchant.CanonicalID(id)

	if m, ok := c.get(ctx, id); ok {
		return m, nil
	}

	m, err := c.next.GetMerchant(ctx, id)
	if err != nil {
		return domain.Merchant{}, err
	}
	c.set(ctx, id, m)
	return m, nil
}

func (c *MerchantCache) get(ctx context.Context, id string) (domain.Merchant, bool) {
	payload, err := c.rc.Get(ctx, key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("merchant cache read failed", "merchant_id", id, "error", err)
		}
		return domain.Merchant{}, false
	}

	var m domain.Merchant
	if err := json.Unmarshal(payload, &m); err != nil || m.ID == "" {
		c.logger.Warn("discarding corrupt merchant cache entry", "merchant_id", id)
		c.rc.Del(ctx, key(id))
		return domain.Merchant{}, false
	}
	return m, true
}

func (c *MerchantCache) set(ctx context.Context, id string, m domain.Merchant) {
	payload, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := c.rc.Set(ctx, key(id), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("merchant cache write failed", "merchant_id", id, "error", err)
	}
}

// Invalidate drops a cached merchant. It reports whether an entry existed.
func (c *MerchantCache) Invalidate(ctx context.Context, id string) (bool, error) {
	if err := merchant.ValidateID(id); err != nil {
		return false, err
	}
	n, err := c.rc.Del(ctx, key(merchant.CanonicalID(id))).Result()
	if err != nil {
		return false, fmt.Errorf("invalidate merchant %s: %w", id, err)
	}
	return n > 0, nil
}
