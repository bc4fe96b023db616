//go:build integration
// +build integration

package rowcache_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vortex-fintech/pgexec/data/postgres"
	"github.com/vortex-fintech/pgexec/data/rowcache"
)

func TestCache_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6380"
	}

	c, err := rowcache.Open(ctx, rowcache.Config{
		Addrs:       []string{addr},
		DialTimeout: 2 * time.Second,
		TTL:         30 * time.Second,
		Prefix:      fmt.Sprintf("pgexec:it:%d:", time.Now().UnixNano()),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = c.Purge(context.Background())
		_ = c.Close()
	})

	key, _, ok, err := c.Lookup(ctx, "SELECT $1", []any{"x"})
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Store(ctx, key, []postgres.Row{{"v": "x", "n": int64(7)}}))

	_, rows, ok, err := c.Lookup(ctx, "SELECT $1", []any{"x"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, postgres.Row{"v": "x", "n": int64(7)}, rows[0])

	require.NoError(t, c.Invalidate(ctx))
	_, _, ok, err = c.Lookup(ctx, "SELECT $1", []any{"x"})
	require.NoError(t, err)
	require.False(t, ok)

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
