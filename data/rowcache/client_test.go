//go:build unit
// +build unit

package rowcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubNewUniversal(t *testing.T, fn func(opt *goredis.UniversalOptions) goredis.UniversalClient) {
	t.Helper()
	orig := NewUniversal
	NewUniversal = fn
	t.Cleanup(func() { NewUniversal = orig })
}

func TestDial_PassesSentinelOptions(t *testing.T) {
	var captured *goredis.UniversalOptions
	stubNewUniversal(t, func(opt *goredis.UniversalOptions) goredis.UniversalClient {
		captured = opt
		// unreachable, so Ping fails without external services
		return goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	})

	_, err := Dial(context.Background(), Config{
		Mode:        ModeSentinel,
		Addrs:       []string{"10.0.0.1:26379", "10.0.0.2:26379"},
		MasterName:  " mymaster ",
		DB:          1,
		DialTimeout: 50 * time.Millisecond,
	})
	require.Error(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, []string{"10.0.0.1:26379", "10.0.0.2:26379"}, captured.Addrs)
	assert.Equal(t, "mymaster", captured.MasterName)
	assert.Equal(t, 1, captured.DB)
}

func TestDial_InvalidConfigNeverBuildsClient(t *testing.T) {
	stubNewUniversal(t, func(*goredis.UniversalOptions) goredis.UniversalClient {
		t.Fatal("NewUniversal must not be called")
		return nil
	})

	for name, cfg := range map[string]Config{
		"no addrs":           {},
		"single two addrs":   {Addrs: []string{"a:1", "b:1"}},
		"sentinel no master": {Mode: ModeSentinel, Addrs: []string{"a:1"}},
		"cluster one addr":   {Mode: ModeCluster, Addrs: []string{"a:1"}},
		"cluster db":         {Mode: ModeCluster, Addrs: []string{"a:1", "b:1"}, DB: 2},
		"unknown mode":       {Mode: "ring", Addrs: []string{"a:1"}},
		"negative db":        {Addrs: []string{"a:1"}, DB: -1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Dial(context.Background(), cfg)
			require.Error(t, err)
		})
	}
}

func TestDial_Miniredis(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := Dial(context.Background(), Config{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	assert.True(t, mr.Exists("k"))
}

func TestLoadConfig(t *testing.T) {
	env := func(m map[string]string) func(string) (string, bool) {
		return func(k string) (string, bool) {
			v, ok := m[k]
			return v, ok
		}
	}

	_, err := LoadConfig(env(nil))
	assert.True(t, errors.Is(err, ErrDisabled))

	cfg, err := LoadConfig(env(map[string]string{
		"REDIS_ADDR":        " 10.0.0.1:26379, 10.0.0.2:26379 ,",
		"REDIS_MODE":        "Sentinel",
		"REDIS_MASTER_NAME": "mymaster",
		"REDIS_DB":          "3",
		"ROWCACHE_TTL":      "30s",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:26379", "10.0.0.2:26379"}, cfg.Addrs)
	assert.Equal(t, 3, cfg.DB)
	assert.Equal(t, 30*time.Second, cfg.TTL)

	cfg, err = LoadConfig(env(map[string]string{"REDIS_ADDR": "localhost:6379"}))
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, cfg.TTL)

	_, err = LoadConfig(env(map[string]string{"REDIS_ADDR": "localhost:6379", "REDIS_DB": "x"}))
	assert.ErrorIs(t, err, errInvalidDB)

	_, err = LoadConfig(env(map[string]string{"REDIS_ADDR": "localhost:6379", "ROWCACHE_TTL": "soon"}))
	assert.ErrorIs(t, err, errInvalidTTL)
}
