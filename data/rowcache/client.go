package rowcache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewUniversal is replaceable in tests.
var NewUniversal = func(opt *redis.UniversalOptions) redis.UniversalClient {
	return redis.NewUniversalClient(opt)
}

// Dial builds a Redis client for cfg and pings it.
func Dial(ctx context.Context, cfg Config) (redis.UniversalClient, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateConfig(cfg, normalizeMode(cfg.Mode)); err != nil {
		return nil, err
	}

	rdb := NewUniversal(&redis.UniversalOptions{
		Addrs:       cfg.Addrs,
		MasterName:  strings.TrimSpace(cfg.MasterName),
		DB:          cfg.DB,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: cfg.DialTimeout,
	})

	pingTimeout := cfg.DialTimeout
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}
	c, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := rdb.Ping(c).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
