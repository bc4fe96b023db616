package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vortex-fintech/pgexec/foundation/logger"
	"github.com/vortex-fintech/pgexec/foundation/retry"
)

var errLeaseReleased = errors.New("postgres: connection already released")

// Pool owns at most one Backend. It is built lazily by Init, shared by
// every caller until CloseAll, and never duplicated by concurrent Init
// calls.
type Pool struct {
	cfg    PoolConfig
	opener Opener
	log    logger.LoggerInterface

	mu          sync.Mutex // guards construction and teardown
	backend     atomic.Pointer[installed]
	reuseLogged atomic.Bool
}

type installed struct{ b Backend }

type PoolOption func(*Pool)

func WithLogger(l logger.LoggerInterface) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

// WithOpener selects the backend driver. PgxOpener is the default.
func WithOpener(o Opener) PoolOption {
	return func(p *Pool) {
		if o != nil {
			p.opener = o
		}
	}
}

// NewPool returns an uninitialized pool; call Init before Acquire.
func NewPool(cfg PoolConfig, opts ...PoolOption) *Pool {
	p := &Pool{
		cfg:    cfg,
		opener: PgxOpener{},
		log:    logger.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Open is NewPool followed by Init.
func Open(ctx context.Context, cfg PoolConfig, opts ...PoolOption) (*Pool, error) {
	p := NewPool(cfg, opts...)
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pool) Config() PoolConfig { return p.cfg }

// Init builds the backend if none is installed. Construction is retried
// up to cfg.Retries times with cfg.RetryDelay between attempts; a
// *ConfigurationError is returned without any attempt.
func (p *Pool) Init(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.backend.Load() != nil {
		p.logReuse()
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// another caller may have built it while we waited
	if p.backend.Load() != nil {
		p.logReuse()
		return nil
	}

	if err := p.cfg.Validate(); err != nil {
		return err
	}

	var b Backend
	res, err := retry.Constant(ctx,
		retry.Policy{Attempts: p.cfg.Retries, Delay: p.cfg.RetryDelay},
		func(ctx context.Context) error {
			bb, err := p.opener.Open(ctx, p.cfg)
			if err != nil {
				return err
			}
			b = bb
			return nil
		},
		func(attempt int, err error, next time.Duration) {
			p.log.Warnw("db connection attempt failed",
				"attempt", attempt,
				"retry_in", next,
				"error", err,
			)
		},
	)
	if err != nil {
		p.log.Errorw("db pool initialization failed",
			"attempts", res.Attempts,
			"target", p.cfg.Redacted(),
			"error", err,
		)
		return &PoolInitializationError{Attempts: res.Attempts, Err: err}
	}

	p.backend.Store(&installed{b: b})
	p.log.Infow("db connection pool created",
		"target", p.cfg.Redacted(),
		"min_size", p.cfg.MinSize,
		"max_size", p.cfg.MaxSize,
		"attempts", res.Attempts,
	)
	return nil
}

func (p *Pool) logReuse() {
	if p.reuseLogged.CompareAndSwap(false, true) {
		p.log.Infow("reusing existing db connection pool")
	}
}

// Ready reports whether a backend is installed.
func (p *Pool) Ready() bool { return p.backend.Load() != nil }

// Acquire leases one connection. It fails with ErrPoolNotReady when no
// backend is installed.
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	in := p.backend.Load()
	if in == nil {
		return nil, ErrPoolNotReady
	}
	c, err := in.b.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: acquire: %w", err)
	}
	return &lease{conn: c, owner: p}, nil
}

// Release returns c to the pool. It never fails: nil, foreign or already
// released connections and backend errors are only logged.
func (p *Pool) Release(c Conn) {
	if c == nil {
		p.log.Debugw("release of nil connection ignored")
		return
	}
	l, ok := c.(*lease)
	if !ok || l == nil || l.owner != p {
		p.log.Warnw("release ignored", "error", ErrForeignConn, "conn_type", fmt.Sprintf("%T", c))
		return
	}
	if !l.released.CompareAndSwap(false, true) {
		p.log.Warnw("release ignored", "error", errLeaseReleased)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Errorw("failed to return connection to pool", "panic", r)
		}
	}()
	if err := l.conn.Release(); err != nil {
		p.log.Errorw("failed to return connection to pool", "error", err)
	}
}

// CloseAll closes every pooled connection and uninstalls the backend, so a
// later Init builds a new one. It must not race with Acquire.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	in := p.backend.Swap(nil)
	p.reuseLogged.Store(false)
	if in == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Errorw("error closing db pool", "panic", r)
		}
	}()
	if err := in.b.Close(); err != nil {
		p.log.Errorw("error closing db pool", "error", err)
		return
	}
	p.log.Infow("closed all db connections")
}

// Ping checks connectivity through the installed backend.
func (p *Pool) Ping(ctx context.Context) error {
	in := p.backend.Load()
	if in == nil {
		return ErrPoolNotReady
	}
	return in.b.Ping(ctx)
}

// Stats is the zero value when no backend is installed.
func (p *Pool) Stats() Stats {
	in := p.backend.Load()
	if in == nil {
		return Stats{}
	}
	return in.b.Stats()
}

// lease ties a BackendConn to the Pool that handed it out.
type lease struct {
	conn     BackendConn
	owner    *Pool
	released atomic.Bool
}

func (l *lease) Begin(ctx context.Context) (Tx, error) {
	if l.released.Load() {
		return nil, errLeaseReleased
	}
	return l.conn.Begin(ctx)
}
