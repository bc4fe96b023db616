// Package rowcache stores fetched result sets in Redis, keyed by the bound
// statement and its arguments.
package rowcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vortex-fintech/pgexec/data/postgres"
)

// Cache implements postgres.RowCache. Entries live under a generation
// counter stored at prefix+"gen"; Invalidate bumps it, which orphans every
// older entry until its TTL expires. Values come back with the Go type
// they were stored with; result sets holding other types are not cached.
type Cache struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

var _ postgres.RowCache = (*Cache)(nil)

func New(rdb redis.UniversalClient, ttl time.Duration, prefix string) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Cache{rdb: rdb, ttl: ttl, prefix: prefix}
}

// Open dials Redis with cfg and wraps the client.
func Open(ctx context.Context, cfg Config) (*Cache, error) {
	rdb, err := Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(rdb, cfg.TTL, cfg.Prefix), nil
}

func (c *Cache) genKey() string { return c.prefix + "gen" }

// Generation returns the current cache generation, 0 when unset.
func (c *Cache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, c.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Key names the entry for sql and args in generation gen.
func (c *Cache) Key(gen int64, sql string, args []any) (string, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("rowcache: encode args: %w", err)
	}
	h := xxhash.New()
	_, _ = h.WriteString(sql)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(b)
	return c.prefix + strconv.FormatInt(gen, 10) + ":" + strconv.FormatUint(h.Sum64(), 16), nil
}

func (c *Cache) Lookup(ctx context.Context, sql string, args []any) (string, []postgres.Row, bool, error) {
	gen, err := c.Generation(ctx)
	if err != nil {
		return "", nil, false, err
	}
	key, err := c.Key(gen, sql, args)
	if err != nil {
		return "", nil, false, err
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return key, nil, false, nil
	}
	if err != nil {
		return "", nil, false, err
	}

	rows, err := decodeRows(raw)
	if err != nil {
		return "", nil, false, fmt.Errorf("rowcache: decode %s: %w", key, err)
	}
	return key, rows, true, nil
}

func (c *Cache) Store(ctx context.Context, key string, rows []postgres.Row) error {
	b, err := encodeRows(rows)
	if err != nil {
		return fmt.Errorf("rowcache: %w", err)
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context) error {
	return c.rdb.Incr(ctx, c.genKey()).Err()
}

// Purge removes every entry under the cache prefix, keeping the
// generation counter, and reports how many keys were deleted. In cluster
// mode SCAN only walks the node serving the call.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.prefix+"*", 256).Result()
		if err != nil {
			return deleted, err
		}
		keys = slices.DeleteFunc(keys, func(k string) bool { return k == c.genKey() })
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}
