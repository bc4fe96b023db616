package rowcache

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Mode = string

const (
	ModeSingle   Mode = "single"
	ModeSentinel Mode = "sentinel"
	ModeCluster  Mode = "cluster"
)

const (
	DefaultTTL    = time.Minute
	DefaultPrefix = "pgexec:rows:"
)

// Config selects the Redis deployment and the cache entry lifetime.
type Config struct {
	Mode        string
	Addrs       []string
	MasterName  string
	DB          int
	Username    string
	Password    string
	DialTimeout time.Duration
	TTL         time.Duration
	Prefix      string
}

var (
	ErrDisabled             = errors.New("rowcache: no address configured")
	errUnsupportedMode      = errors.New("rowcache: unsupported redis mode")
	errMasterNameRequired   = errors.New("rowcache: master name is required for sentinel mode")
	errMasterNameUnexpected = errors.New("rowcache: master name is only valid for sentinel mode")
	errSingleModeAddrCount  = errors.New("rowcache: single mode requires exactly one address")
	errClusterModeAddrCount = errors.New("rowcache: cluster mode requires at least two addresses")
	errClusterDBUnsupported = errors.New("rowcache: db must be 0 in cluster mode")
	errInvalidDB            = errors.New("rowcache: db must be >= 0")
	errInvalidTTL           = errors.New("rowcache: ttl must be > 0")
)

// LoadConfig reads REDIS_ADDR (comma separated), REDIS_MODE,
// REDIS_MASTER_NAME, REDIS_DB, REDIS_USERNAME, REDIS_PASSWORD and
// ROWCACHE_TTL. ErrDisabled is returned when REDIS_ADDR is unset.
func LoadConfig(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}

	cfg := Config{
		Mode:       get("REDIS_MODE"),
		MasterName: get("REDIS_MASTER_NAME"),
		Username:   get("REDIS_USERNAME"),
		Password:   get("REDIS_PASSWORD"),
		TTL:        DefaultTTL,
	}
	for _, a := range strings.Split(get("REDIS_ADDR"), ",") {
		if a = strings.TrimSpace(a); a != "" {
			cfg.Addrs = append(cfg.Addrs, a)
		}
	}
	if len(cfg.Addrs) == 0 {
		return Config{}, ErrDisabled
	}
	if v := get("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errInvalidDB
		}
		cfg.DB = n
	}
	if v := get("ROWCACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, errInvalidTTL
		}
		cfg.TTL = d
	}
	return cfg, validateConfig(cfg, normalizeMode(cfg.Mode))
}

func normalizeMode(v string) Mode {
	mode := strings.ToLower(strings.TrimSpace(v))
	if mode == "" {
		return ModeSingle
	}
	return Mode(mode)
}

func validateConfig(cfg Config, mode Mode) error {
	if cfg.DB < 0 {
		return errInvalidDB
	}
	if cfg.TTL < 0 {
		return errInvalidTTL
	}
	if len(cfg.Addrs) == 0 {
		return ErrDisabled
	}

	switch mode {
	case ModeSingle:
		if len(cfg.Addrs) != 1 {
			return errSingleModeAddrCount
		}
		if strings.TrimSpace(cfg.MasterName) != "" {
			return errMasterNameUnexpected
		}
		return nil
	case ModeCluster:
		if len(cfg.Addrs) < 2 {
			return errClusterModeAddrCount
		}
		if strings.TrimSpace(cfg.MasterName) != "" {
			return errMasterNameUnexpected
		}
		if cfg.DB != 0 {
			return errClusterDBUnsupported
		}
		return nil
	case ModeSentinel:
		if strings.TrimSpace(cfg.MasterName) == "" {
			return errMasterNameRequired
		}
		return nil
	default:
		return errUnsupportedMode
	}
}
