// Package app wires the settlement service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/acme/settlement/internal/cache"
	"github.com/acme/settlement/internal/config"
	"github.com/acme/settlement/internal/gateway"
	"github.com/acme/settlement/internal/merchant"
	"github.com/acme/settlement/internal/period"
	"github.com/acme/settlement/internal/settlement"
)

// ErrCacheDisabled is returned by NewMerchantCache when REDIS_ADDR is unset.
var ErrCacheDisabled = errors.New("merchant cache disabled: REDIS_ADDR is not set")

// NewService builds the settlement service described by cfg. When redis is
// configured and reachable, merchant lookups go through the cache. The
// returned close func releases the redis client.
func NewService(ctx context.Context, cfg config.Config, logger *slog.Logger) (*settlement.Service, func()) {
	client := gateway.New(gateway.OptionsFromConfig(cfg.API, logger))
	calc := period.NewCalculator(period.WithEarliest(cfg.Settlement.Earliest))
	opts := []settlement.Option{settlement.WithCalculator(calc), settlement.WithLogger(logger)}

	closeFn := func() {}
	if cfg.Redis.Addr != "" {
		rc, err := dialRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unreachable, merchant cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			merchants := cache.NewMerchantCache(rc, merchant.NewLookup(client, logger), cfg.Redis.MerchantTTL, logger)
			opts = append(opts, settlement.WithMerchantGetter(merchants))
			closeFn = closer(rc, logger)
			logger.Info("merchant cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.MerchantTTL)
		}
	}
	return settlement.NewService(client, opts...), closeFn
}

// NewMerchantCache connects to the configured redis for cache maintenance.
// Unlike NewService it fails when redis is unset or unreachable.
func NewMerchantCache(ctx context.Context, cfg config.Config, logger *slog.Logger) (*cache.MerchantCache, func(), error) {
	if cfg.Redis.Addr == "" {
		return nil, nil, ErrCacheDisabled
	}
	rc, err := dialRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}
	client := gateway.New(gateway.OptionsFromConfig(cfg.API, logger))
	c := cache.NewMerchantCache(rc, merchant.NewLookup(client, logger), cfg.Redis.MerchantTTL, logger)
	return c, closer(rc, logger), nil
}

func dialRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		MaxRetries:   1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		rc.Close()
		return nil, err
	}
	return rc, nil
}

func closer(rc *redis.Client, logger *slog.Logger) func() {
	return func() {
		if err := rc.Close(); err != nil {
			logger.Error("close redis", "error", err)
		}
	}
}
