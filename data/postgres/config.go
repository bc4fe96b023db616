package postgres

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vortex-fintech/pgexec/foundation/validator"
)

// Environment variables read by LoadPoolConfig.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvDB          = "POSTGRES_DB"
	EnvUser        = "POSTGRES_USER"
	EnvPassword    = "POSTGRES_PASSWORD"
	EnvHost        = "POSTGRES_HOST"
	EnvPort        = "POSTGRES_PORT"
	EnvSSLMode     = "POSTGRES_SSLMODE"
	EnvMaxConn     = "POSTGRES_MAX_CONN"
)

const (
	DefaultHost       = "localhost"
	DefaultPort       = "5432"
	DefaultMinSize    = 1
	DefaultMaxSize    = 5
	DefaultRetries    = 3
	DefaultRetryDelay = 2 * time.Second

	defaultApplicationName = "pgexec"
)

// PoolConfig describes how to reach the database and how to size the pool.
// Either DSN, or Database, User and Password must be set.
type PoolConfig struct {
	DSN      string `env:"DATABASE_URL"`
	Host     string `env:"POSTGRES_HOST"`
	Port     string `env:"POSTGRES_PORT" validate:"omitempty,numeric"`
	Database string `env:"POSTGRES_DB" validate:"required_without=DSN"`
	User     string `env:"POSTGRES_USER" validate:"required_without=DSN"`
	Password string `env:"POSTGRES_PASSWORD" validate:"required_without=DSN"`
	SSLMode  string `env:"POSTGRES_SSLMODE" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`

	MinSize    int           `validate:"gte=0,ltefield=MaxSize"`
	MaxSize    int           `env:"POSTGRES_MAX_CONN" validate:"gt=0,lte=2147483647"`
	Retries    int           `validate:"gte=1"`
	RetryDelay time.Duration `validate:"gte=0"`

	MaxConnLifetime   time.Duration `validate:"gte=0"`
	MaxConnIdleTime   time.Duration `validate:"gte=0"`
	HealthCheckPeriod time.Duration `validate:"gte=0"`
	ApplicationName   string
}

// DefaultPoolConfig returns the sizing and retry defaults with no
// connection target.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Host:       DefaultHost,
		Port:       DefaultPort,
		MinSize:    DefaultMinSize,
		MaxSize:    DefaultMaxSize,
		Retries:    DefaultRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

// LookupFunc reads one variable; os.LookupEnv is the usual source.
type LookupFunc func(key string) (string, bool)

// LoadPoolConfig builds a PoolConfig from the process environment.
func LoadPoolConfig() (PoolConfig, error) {
	return LoadPoolConfigFrom(os.LookupEnv)
}

// LoadPoolConfigFrom builds a PoolConfig from lookup, starting from
// DefaultPoolConfig. DATABASE_URL takes precedence over the discrete
// variables. POSTGRES_MAX_CONN replaces MaxSize only when it is a
// positive integer; anything else is ignored.
func LoadPoolConfigFrom(lookup LookupFunc) (PoolConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}
	// credentials and names keep surrounding whitespace; blank counts as unset
	raw := func(k string) string {
		v, _ := lookup(k)
		if strings.TrimSpace(v) == "" {
			return ""
		}
		return v
	}

	cfg := DefaultPoolConfig()
	if dsn := get(EnvDatabaseURL); dsn != "" {
		cfg.DSN = dsn
	} else {
		cfg.Database = raw(EnvDB)
		cfg.User = raw(EnvUser)
		cfg.Password = raw(EnvPassword)
		if h := get(EnvHost); h != "" {
			cfg.Host = h
		}
		if p := get(EnvPort); p != "" {
			cfg.Port = p
		}
		cfg.SSLMode = get(EnvSSLMode)
	}

	if n, err := strconv.Atoi(get(EnvMaxConn)); err == nil && n > 0 {
		cfg.MaxSize = n
	}

	if err := cfg.Validate(); err != nil {
		return PoolConfig{}, err
	}
	return cfg, nil
}

// Validate checks cfg and reports every problem at once as a
// *ConfigurationError.
func (c PoolConfig) Validate() error {
	vs, err := validator.Violations(c)
	if err != nil {
		return &ConfigurationError{Err: err}
	}
	if len(vs) == 0 {
		return nil
	}
	ce := &ConfigurationError{}
	for _, v := range vs {
		if v.Tag == "required_without" {
			ce.Missing = append(ce.Missing, v.Field)
			continue
		}
		ce.Invalid = append(ce.Invalid, v.Field+": "+v.Code)
	}
	return ce
}

// ConnString returns DSN, or a postgres URL built from the discrete
// fields. IPv6 hosts are bracketed by net.JoinHostPort.
func (c PoolConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	host, port := c.Host, c.Port
	if host == "" {
		host = DefaultHost
	}
	if port == "" {
		port = DefaultPort
	}
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + strings.TrimPrefix(c.Database, "/"),
	}
	if c.User != "" || c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Redacted is ConnString with the password masked, safe for logs.
// Key/value DSNs are not parsed and are hidden entirely.
func (c PoolConfig) Redacted() string {
	s := c.ConnString()
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[redacted]"
	}
	return u.Redacted()
}

func (c PoolConfig) applicationName() string {
	if c.ApplicationName != "" {
		return c.ApplicationName
	}
	return defaultApplicationName
}
